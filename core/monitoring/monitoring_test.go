package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordMonitor struct {
	errs []error
	tags []map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestGlobalMonitor(t *testing.T) {
	prev := Current()
	defer Init(prev)

	rec := &recordMonitor{}
	Init(rec)
	Init(nil)
	assert.Same(t, rec, Current())

	CaptureException(errors.New("boom"), map[string]string{"op": "solve"})
	CaptureException(nil, nil)
	assert.Len(t, rec.errs, 1)
	assert.Equal(t, "solve", rec.tags[0]["op"])
	Flush(time.Millisecond)
}
