package worker

import (
	"errors"
	"fmt"

	"capnproto.org/go/capnp/v3"

	"github.com/iykyk-syn/unison-worker/bapl"
	"github.com/iykyk-syn/unison-worker/workermsg"
)

// ErrUnexpectedMessage is returned when a worker envelope decodes to a variant other than the
// one expected.
var ErrUnexpectedMessage = errors.New("unexpected worker message")

// BatchMessage is the batch variant of the envelope workers exchange: an ordered list of raw
// transactions.
type BatchMessage struct {
	Transactions [][]byte
}

func (b *BatchMessage) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}

	wmsg, err := workermsg.NewRootWorkerMessage(seg)
	if err != nil {
		return nil, fmt.Errorf("converting segment to worker message: %w", err)
	}

	txs, err := wmsg.NewBatch(int32(len(b.Transactions)))
	if err != nil {
		return nil, err
	}
	for i, tx := range b.Transactions {
		if err = txs.Set(i, tx); err != nil {
			return nil, fmt.Errorf("setting transaction %d: %w", i, err)
		}
	}

	return msg.Marshal()
}

func (b *BatchMessage) UnmarshalBinary(data []byte) (err error) {
	b.Transactions, err = DecodeBatch(data)
	return err
}

// DecodeBatch decodes the transactions out of a serialized batch envelope.
// Envelopes of any other variant yield ErrUnexpectedMessage.
func DecodeBatch(data []byte) ([][]byte, error) {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return nil, err
	}

	wmsg, err := workermsg.ReadRootWorkerMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("converting received binary data to worker message: %w", err)
	}
	if which := wmsg.Which(); which != workermsg.WorkerMessage_Which_batch {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedMessage, which)
	}

	txs, err := wmsg.Batch()
	if err != nil {
		return nil, err
	}

	out := make([][]byte, txs.Len())
	for i := range out {
		out[i], err = txs.At(i)
		if err != nil {
			return nil, fmt.Errorf("reading transaction %d: %w", i, err)
		}
	}
	return out, nil
}

// BatchRequestMessage asks the origin worker for the batches with the given digests.
type BatchRequestMessage struct {
	Digests []bapl.Digest
	Origin  []byte
}

func (r *BatchRequestMessage) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}

	wmsg, err := workermsg.NewRootWorkerMessage(seg)
	if err != nil {
		return nil, fmt.Errorf("converting segment to worker message: %w", err)
	}

	wmsg.SetBatchRequest()
	req := wmsg.BatchRequest()
	digests, err := req.NewDigests(int32(len(r.Digests)))
	if err != nil {
		return nil, err
	}
	for i, d := range r.Digests {
		if err = digests.Set(i, d.Bytes()); err != nil {
			return nil, err
		}
	}
	if err = req.SetOrigin(r.Origin); err != nil {
		return nil, err
	}

	return msg.Marshal()
}

// Kind tags a PrimaryMessage with the origin of the batch it announces.
type Kind uint8

const (
	// OurBatch announces a batch sealed by this worker.
	OurBatch Kind = iota
	// OthersBatch announces a batch received from another worker.
	OthersBatch
)

func (k Kind) String() string {
	switch k {
	case OurBatch:
		return "OurBatch"
	case OthersBatch:
		return "OthersBatch"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// PrimaryMessage notifies the primary that a batch is persisted and retrievable by Digest.
type PrimaryMessage struct {
	Kind     Kind
	Digest   bapl.Digest
	WorkerID uint32
}

func (m *PrimaryMessage) MarshalBinary() ([]byte, error) {
	msg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}

	pmsg, err := workermsg.NewRootWorkerPrimaryMessage(seg)
	if err != nil {
		return nil, fmt.Errorf("converting segment to primary message: %w", err)
	}

	pmsg.SetWorkerId(m.WorkerID)
	switch m.Kind {
	case OurBatch:
		err = pmsg.SetOurBatch(m.Digest.Bytes())
	case OthersBatch:
		err = pmsg.SetOthersBatch(m.Digest.Bytes())
	default:
		err = fmt.Errorf("unknown message kind: %v", m.Kind)
	}
	if err != nil {
		return nil, err
	}

	return msg.Marshal()
}

func (m *PrimaryMessage) UnmarshalBinary(data []byte) error {
	msg, err := capnp.Unmarshal(data)
	if err != nil {
		return err
	}

	pmsg, err := workermsg.ReadRootWorkerPrimaryMessage(msg)
	if err != nil {
		return fmt.Errorf("converting received binary data to primary message: %w", err)
	}

	switch which := pmsg.Which(); which {
	case workermsg.WorkerPrimaryMessage_Which_ourBatch:
		m.Kind = OurBatch
	case workermsg.WorkerPrimaryMessage_Which_othersBatch:
		m.Kind = OthersBatch
	default:
		return fmt.Errorf("unknown primary message variant: %v", which)
	}

	digest, err := pmsg.Digest()
	if err != nil {
		return err
	}
	m.Digest, err = bapl.DigestFromBytes(digest)
	if err != nil {
		return err
	}
	m.WorkerID = pmsg.WorkerId()
	return nil
}

func (m *PrimaryMessage) String() string {
	return fmt.Sprintf("%v(%v, %d)", m.Kind, m.Digest, m.WorkerID)
}
