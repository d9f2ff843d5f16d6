package protocol

import (
	"bytes"
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type recordedCall struct {
	target common.Address
	data   []byte
}

// fakeBatcher scripts multicall outcomes per (target, method) pair and
// records everything the handler scheduled.
type fakeBatcher struct {
	calls    []recordedCall
	script   func(target common.Address, data []byte) entity.CallOutcome
	execErr  error
	executes int
}

func (b *fakeBatcher) Add(target common.Address, data []byte) int {
	b.calls = append(b.calls, recordedCall{target: target, data: data})
	return len(b.calls) - 1
}

func (b *fakeBatcher) Len() int { return len(b.calls) }

func (b *fakeBatcher) Execute(context.Context) error {
	b.executes++
	return b.execErr
}

func (b *fakeBatcher) Result(i int) (entity.CallOutcome, error) {
	if b.executes == 0 {
		return entity.CallOutcome{}, entity.ErrBatchNotExecuted
	}
	if i < 0 || i >= len(b.calls) {
		return entity.CallOutcome{}, fmt.Errorf("result index %d out of range", i)
	}
	return b.script(b.calls[i].target, b.calls[i].data), nil
}

func hasMethod(data []byte, methodID []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], methodID)
}

func word(v *big.Int) []byte {
	return common.LeftPadBytes(v.Bytes(), 32)
}

func words(values ...*big.Int) []byte {
	out := make([]byte, 0, len(values)*32)
	for _, v := range values {
		out = append(out, word(v)...)
	}
	return out
}

func addressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

func ok(data []byte) entity.CallOutcome {
	return entity.CallOutcome{Success: true, ReturnData: data}
}

func unavailable() entity.CallOutcome {
	return entity.CallOutcome{Success: false}
}

// scale shifts a base-10 mantissa by exp, e.g. scale(105, 16) is 1.05e18.
func scale(mantissa int64, exp int64) *big.Int {
	out := big.NewInt(mantissa)
	return out.Mul(out, new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil))
}
