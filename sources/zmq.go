package sources

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"

	"github.com/klaytn-labs/mempool-tracker/worker"
)

// rawTxTopic is bitcoind's zmqpubrawtx topic name.
const rawTxTopic = "rawtx"

// ZMQFactory dials a fresh subscriber socket against a bitcoind ZMQ
// publisher endpoint. Kept as its own small value type, mirroring
// original_source/src/zmq_factory.rs::BitcoinZmqFactory, so the
// connection parameters travel together and a reconnect just calls
// Connect again.
type ZMQFactory struct {
	Host string
	Port uint16
}

func (f ZMQFactory) endpoint() string {
	return fmt.Sprintf("tcp://%s:%d", f.Host, f.Port)
}

// Connect dials the bitcoind ZMQ publisher and subscribes to the
// rawtx topic, returning a live Subscriber.
func (f ZMQFactory) Connect(ctx context.Context) (*Subscriber, error) {
	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(f.endpoint()); err != nil {
		return nil, fmt.Errorf("dial zmq %s: %w", f.endpoint(), err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, rawTxTopic); err != nil {
		sock.Close()
		return nil, fmt.Errorf("subscribe rawtx: %w", err)
	}
	return &Subscriber{sock: sock}, nil
}

// Subscriber wraps one live ZMQ subscription. Every received rawtx
// message is pushed onto the shared task queue as a worker.RawTx.
type Subscriber struct {
	sock zmq4.Socket
}

// Run blocks receiving messages until ctx is canceled or the socket
// errors, mirroring original_source/src/app.rs::run's
// `while let Some(message) = self.zmq.next().await` loop generalized
// from a single async stream to a blocking Recv/select pair — the
// direct idiom for a synchronous, cancelable consume loop in Go.
func (s *Subscriber) Run(ctx context.Context, tasks chan<- worker.Task) error {
	defer s.sock.Close()

	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("zmq recv: %w", err)
		}
		if len(msg.Frames) < 2 {
			continue
		}
		// Frame 0 is the topic, frame 1 the serialized transaction,
		// frame 2 (if present) a sequence number — bitcoind's standard
		// three-frame zmqpubrawtx envelope.
		payload := make([]byte, len(msg.Frames[1]))
		copy(payload, msg.Frames[1])

		select {
		case tasks <- worker.RawTx{Bytes: payload}:
		case <-ctx.Done():
			return nil
		}
	}
}
