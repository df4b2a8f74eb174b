// Package workermsg holds Cap'n Proto accessors for the messages described in workermsg.capnp.
package workermsg

import (
	"fmt"

	"capnproto.org/go/capnp/v3"
)

type WorkerMessage capnp.Struct

type WorkerMessage_Which uint16

const (
	WorkerMessage_Which_batch        WorkerMessage_Which = 0
	WorkerMessage_Which_batchRequest WorkerMessage_Which = 1
)

func (w WorkerMessage_Which) String() string {
	switch w {
	case WorkerMessage_Which_batch:
		return "batch"
	case WorkerMessage_Which_batchRequest:
		return "batchRequest"
	}
	return fmt.Sprintf("WorkerMessage_Which(%d)", uint16(w))
}

var workerMessageSize = capnp.ObjectSize{DataSize: 8, PointerCount: 2}

func NewRootWorkerMessage(s *capnp.Segment) (WorkerMessage, error) {
	st, err := capnp.NewRootStruct(s, workerMessageSize)
	return WorkerMessage(st), err
}

func ReadRootWorkerMessage(msg *capnp.Message) (WorkerMessage, error) {
	root, err := msg.Root()
	return WorkerMessage(root.Struct()), err
}

func (s WorkerMessage) Which() WorkerMessage_Which {
	return WorkerMessage_Which(capnp.Struct(s).Uint16(0))
}

func (s WorkerMessage) Batch() (capnp.DataList, error) {
	if s.Which() != WorkerMessage_Which_batch {
		return capnp.DataList{}, fmt.Errorf("Which() = %v, want batch", s.Which())
	}
	p, err := capnp.Struct(s).Ptr(0)
	return capnp.DataList(p.List()), err
}

func (s WorkerMessage) HasBatch() bool {
	return s.Which() == WorkerMessage_Which_batch && capnp.Struct(s).HasPtr(0)
}

// NewBatch sets the batch variant to a newly allocated list of n transactions.
func (s WorkerMessage) NewBatch(n int32) (capnp.DataList, error) {
	capnp.Struct(s).SetUint16(0, uint16(WorkerMessage_Which_batch))
	l, err := capnp.NewDataList(capnp.Struct(s).Segment(), n)
	if err != nil {
		return capnp.DataList{}, err
	}
	err = capnp.Struct(s).SetPtr(0, l.ToPtr())
	return l, err
}

func (s WorkerMessage) BatchRequest() WorkerMessage_batchRequest {
	return WorkerMessage_batchRequest(s)
}

func (s WorkerMessage) SetBatchRequest() {
	capnp.Struct(s).SetUint16(0, uint16(WorkerMessage_Which_batchRequest))
}

type WorkerMessage_batchRequest capnp.Struct

func (s WorkerMessage_batchRequest) Digests() (capnp.DataList, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return capnp.DataList(p.List()), err
}

func (s WorkerMessage_batchRequest) NewDigests(n int32) (capnp.DataList, error) {
	l, err := capnp.NewDataList(capnp.Struct(s).Segment(), n)
	if err != nil {
		return capnp.DataList{}, err
	}
	err = capnp.Struct(s).SetPtr(0, l.ToPtr())
	return l, err
}

func (s WorkerMessage_batchRequest) Origin() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return p.Data(), err
}

func (s WorkerMessage_batchRequest) SetOrigin(v []byte) error {
	return capnp.Struct(s).SetData(1, v)
}

type WorkerPrimaryMessage capnp.Struct

type WorkerPrimaryMessage_Which uint16

const (
	WorkerPrimaryMessage_Which_ourBatch    WorkerPrimaryMessage_Which = 0
	WorkerPrimaryMessage_Which_othersBatch WorkerPrimaryMessage_Which = 1
)

func (w WorkerPrimaryMessage_Which) String() string {
	switch w {
	case WorkerPrimaryMessage_Which_ourBatch:
		return "ourBatch"
	case WorkerPrimaryMessage_Which_othersBatch:
		return "othersBatch"
	}
	return fmt.Sprintf("WorkerPrimaryMessage_Which(%d)", uint16(w))
}

var workerPrimaryMessageSize = capnp.ObjectSize{DataSize: 8, PointerCount: 1}

func NewRootWorkerPrimaryMessage(s *capnp.Segment) (WorkerPrimaryMessage, error) {
	st, err := capnp.NewRootStruct(s, workerPrimaryMessageSize)
	return WorkerPrimaryMessage(st), err
}

func ReadRootWorkerPrimaryMessage(msg *capnp.Message) (WorkerPrimaryMessage, error) {
	root, err := msg.Root()
	return WorkerPrimaryMessage(root.Struct()), err
}

func (s WorkerPrimaryMessage) Which() WorkerPrimaryMessage_Which {
	return WorkerPrimaryMessage_Which(capnp.Struct(s).Uint16(4))
}

func (s WorkerPrimaryMessage) WorkerId() uint32 {
	return capnp.Struct(s).Uint32(0)
}

func (s WorkerPrimaryMessage) SetWorkerId(v uint32) {
	capnp.Struct(s).SetUint32(0, v)
}

// Digest returns the batch digest of either variant.
func (s WorkerPrimaryMessage) Digest() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s WorkerPrimaryMessage) SetOurBatch(digest []byte) error {
	capnp.Struct(s).SetUint16(4, uint16(WorkerPrimaryMessage_Which_ourBatch))
	return capnp.Struct(s).SetData(0, digest)
}

func (s WorkerPrimaryMessage) SetOthersBatch(digest []byte) error {
	capnp.Struct(s).SetUint16(4, uint16(WorkerPrimaryMessage_Which_othersBatch))
	return capnp.Struct(s).SetData(0, digest)
}
