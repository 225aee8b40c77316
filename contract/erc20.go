package contract

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/transfer-indexer/contract/abi"
)

var ErrUnexpectedEvent = errors.New("unexpected event")

// TransferEvent is a decoded ERC-20 Transfer log along with the raw log.
type TransferEvent struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Log   *types.Log
}

type ERC20Contract struct {
	address       common.Address
	abi           abi.ABI
	transferTopic common.Hash
}

func NewERC20Contract(addr common.Address) *ERC20Contract {
	topic, err := abi.ERC20.EventTopic("Transfer")
	if err != nil {
		panic(err)
	}
	return &ERC20Contract{
		address:       addr,
		abi:           abi.ERC20,
		transferTopic: topic,
	}
}

func (c *ERC20Contract) Address() common.Address {
	return c.address
}

// TransferFilter builds a logs filter for Transfer events of the contract.
// Nil bounds are left open, as eth_subscribe expects.
func (c *ERC20Contract) TransferFilter(fromBlock, toBlock *uint) ethereum.FilterQuery {
	q := ethereum.FilterQuery{
		Addresses: []common.Address{c.address},
		Topics:    [][]common.Hash{{c.transferTopic}},
	}
	if fromBlock != nil {
		q.FromBlock = new(big.Int).SetUint64(uint64(*fromBlock))
	}
	if toBlock != nil {
		q.ToBlock = new(big.Int).SetUint64(uint64(*toBlock))
	}
	return q
}

func (c *ERC20Contract) DecodeTransfer(log *types.Log) (*TransferEvent, error) {
	if log.Address != c.address {
		return nil, fmt.Errorf("log emitted by %s instead of %s: %w", log.Address, c.address, ErrUnexpectedEvent)
	}
	event, data, err := c.abi.ParseLog(log)
	if err != nil {
		return nil, err
	}
	if event != abi.Transfer {
		return nil, fmt.Errorf("log does not match %q: %w", abi.Transfer, ErrUnexpectedEvent)
	}
	from, ok1 := data["from"].(common.Address)
	to, ok2 := data["to"].(common.Address)
	value, ok3 := data["value"].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("unexpected transfer arguments %v: %w", data, abi.ErrInvalidEvent)
	}
	return &TransferEvent{
		From:  from,
		To:    to,
		Value: value,
		Log:   log,
	}, nil
}
