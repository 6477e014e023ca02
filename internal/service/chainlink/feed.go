package chainlink

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"OraclePull/internal/domain/models"
	drepo "OraclePull/internal/domain/repository"
)

// ContractCaller is the read side of an EVM node that a feed needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Feed reads one aggregator proxy through eth_call at the latest block.
type Feed struct {
	caller  ContractCaller
	address common.Address
}

func NewFeed(caller ContractCaller, address string) (*Feed, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid feed address %q", address)
	}
	return &Feed{caller: caller, address: common.HexToAddress(address)}, nil
}

func (f *Feed) Address() string { return f.address.Hex() }

func (f *Feed) Latest(ctx context.Context) (models.RoundPayload, error) {
	out, err := f.call(ctx, methodLatestRound)
	if err != nil {
		return models.RoundPayload{}, err
	}
	return roundPayload(out)
}

func (f *Feed) TimestampOf(ctx context.Context, round models.RoundID) (int64, error) {
	out, err := f.call(ctx, methodTimestamp, round)
	if err != nil {
		return 0, err
	}
	ts, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected output %T", methodTimestamp, out[0])
	}
	return ts.Int64(), nil
}

// DataOf treats a reverted call ("No data present") as an unpopulated
// round rather than a failure.
func (f *Feed) DataOf(ctx context.Context, round models.RoundID) (models.RoundPayload, error) {
	out, err := f.call(ctx, methodRoundData, round)
	if err != nil {
		if isRevert(err) {
			return models.RoundPayload{RoundID: models.CloneRound(round)}, nil
		}
		return models.RoundPayload{}, err
	}
	return roundPayload(out)
}

func (f *Feed) Decimals(ctx context.Context) (int32, error) {
	out, err := f.call(ctx, methodDecimals)
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected output %T", methodDecimals, out[0])
	}
	return int32(d), nil
}

func (f *Feed) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := aggregatorABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &f.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, f.address.Hex(), err)
	}
	out, err := aggregatorABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: empty output", method)
	}
	return out, nil
}

func roundPayload(out []interface{}) (models.RoundPayload, error) {
	if len(out) != 5 {
		return models.RoundPayload{}, fmt.Errorf("round data: want 5 outputs, got %d", len(out))
	}
	roundID, ok1 := out[0].(*big.Int)
	answer, ok2 := out[1].(*big.Int)
	updatedAt, ok3 := out[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return models.RoundPayload{}, errors.New("round data: unexpected output types")
	}
	return models.RoundPayload{RoundID: roundID, Value: answer, UpdatedAt: updatedAt.Int64()}, nil
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

var _ drepo.RoundStore = (*Feed)(nil)
