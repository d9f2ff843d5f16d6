package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/domain/entity"
)

// Multicall3 aggregate3 fragment. Calls are always scheduled with
// allowFailure=true so one reverting read cannot poison the batch.
const multicallABIJSON = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

var (
	parsedMulticallABI  abi.ABI
	parsedMulticallOnce sync.Once
)

func initParsedMulticallABI() {
	parsedMulticallOnce.Do(func() {
		var err error
		parsedMulticallABI, err = abi.JSON(strings.NewReader(multicallABIJSON))
		if err != nil {
			panic(fmt.Sprintf("failed to parse Multicall3 ABI: %v", err))
		}
	})
}

// multicallCall mirrors the Multicall3.Call3 tuple layout for ABI packing.
type multicallCall struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// multicallResult mirrors the Multicall3.Result tuple layout.
type multicallResult struct {
	Success    bool
	ReturnData []byte
}

// MulticallBatcher collects read-only calls and executes them as a single
// aggregate3 call through the chain client. Adding a call after Execute
// starts a fresh batch.
type MulticallBatcher struct {
	client   port.ChainClient
	contract common.Address

	calls    []multicallCall
	results  []entity.CallOutcome
	executed bool
}

// NewMulticallBatcher creates a batcher bound to one chain's Multicall3 contract.
func NewMulticallBatcher(client port.ChainClient, contract common.Address) *MulticallBatcher {
	initParsedMulticallABI()
	return &MulticallBatcher{client: client, contract: contract}
}

var _ port.CallBatcher = (*MulticallBatcher)(nil)

// Add schedules a call and returns its index within the current batch.
func (b *MulticallBatcher) Add(target common.Address, callData []byte) int {
	if b.executed {
		b.calls = nil
		b.results = nil
		b.executed = false
	}
	b.calls = append(b.calls, multicallCall{Target: target, AllowFailure: true, CallData: callData})
	return len(b.calls) - 1
}

// Len reports how many calls are scheduled and not yet executed.
func (b *MulticallBatcher) Len() int {
	if b.executed {
		return 0
	}
	return len(b.calls)
}

// Execute runs every scheduled call in one aggregate3 round trip. An empty
// batch is a no-op, a second Execute without new calls is too.
func (b *MulticallBatcher) Execute(ctx context.Context) error {
	if b.executed {
		return nil
	}
	if len(b.calls) == 0 {
		b.executed = true
		return nil
	}

	input, err := parsedMulticallABI.Pack("aggregate3", b.calls)
	if err != nil {
		return fmt.Errorf("failed to pack aggregate3 call: %w", err)
	}

	raw, err := b.client.CallContract(ctx, b.contract, input)
	if err != nil {
		return fmt.Errorf("multicall execution failed: %w", err)
	}

	unpacked, err := parsedMulticallABI.Unpack("aggregate3", raw)
	if err != nil {
		return fmt.Errorf("failed to unpack aggregate3 result: %w", err)
	}
	if len(unpacked) != 1 {
		return fmt.Errorf("unexpected aggregate3 output arity %d", len(unpacked))
	}

	decoded := *abi.ConvertType(unpacked[0], new([]multicallResult)).(*[]multicallResult)
	if len(decoded) != len(b.calls) {
		return fmt.Errorf("aggregate3 returned %d results for %d calls", len(decoded), len(b.calls))
	}

	b.results = make([]entity.CallOutcome, len(decoded))
	for i, res := range decoded {
		b.results[i] = entity.CallOutcome{Success: res.Success, ReturnData: res.ReturnData}
	}
	b.executed = true
	return nil
}

// Result returns the outcome of the call added at index i in the executed batch.
func (b *MulticallBatcher) Result(i int) (entity.CallOutcome, error) {
	if !b.executed {
		return entity.CallOutcome{}, entity.ErrBatchNotExecuted
	}
	if i < 0 || i >= len(b.results) {
		return entity.CallOutcome{}, fmt.Errorf("call index %d out of range (batch size %d)", i, len(b.results))
	}
	return b.results[i], nil
}
