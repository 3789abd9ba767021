package backend

import (
	"github.com/gogpu/framegraph/device/devicetest"
)

func init() {
	Register(BackendRecord, func() (Device, error) {
		return NewRecordDevice(), nil
	})
}

// RecordDevice is the always-available fallback. It keeps every call in
// memory, which makes it the device behind dry-run planning.
type RecordDevice struct {
	*devicetest.Device
}

// NewRecordDevice creates an empty recording device.
func NewRecordDevice() *RecordDevice {
	return &RecordDevice{Device: devicetest.New()}
}

// Name implements Device.
func (d *RecordDevice) Name() string { return BackendRecord }

// AdvanceFrame moves CurrentFrameIndex forward.
func (d *RecordDevice) AdvanceFrame() uint64 {
	d.Frame++
	return d.Frame
}

// Close implements Device. Recorded state stays readable.
func (d *RecordDevice) Close() {}
