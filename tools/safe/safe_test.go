package safe

import (
	"sync"
	"testing"

	"PGateway/tools/errs"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRunRecovers(t *testing.T) {
	err := Run(zap.NewNop(), "boom", func() { panic("kaboom") })
	ce, ok := errs.As(err)
	assert.True(t, ok)
	assert.Equal(t, errs.ServerInternalError, ce.Code)
	assert.Contains(t, ce.Detail, "kaboom")

	assert.NoError(t, Run(nil, "fine", func() {}))
}

func TestGoRecovers(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	Go(zap.NewNop(), "boom", func() {
		defer wg.Done()
		panic("kaboom")
	})
	wg.Wait()
}

func TestMustNotNil(t *testing.T) {
	var p *int
	var m map[string]int
	assert.Panics(t, func() { MustNotNil(nil, "x") })
	assert.Panics(t, func() { MustNotNil(p, "p") })
	assert.Panics(t, func() { MustNotNil(m, "m") })
	assert.NotPanics(t, func() { MustNotNil(1, "n") })
	assert.NotPanics(t, func() { MustNotNil(&struct{}{}, "s") })
}
