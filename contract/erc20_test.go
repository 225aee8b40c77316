package contract_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/contract/abi"
)

var (
	tokenAddr     = common.HexToAddress("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984")
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	approvalTopic = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	aliceAddr     = common.HexToAddress("0x01")
	bobAddr       = common.HexToAddress("0x02")
)

func TestERC20Contract_TransferFilter(t *testing.T) {
	t.Parallel()

	c := contract.NewERC20Contract(tokenAddr)
	from, to := uint(100), uint(199)

	q := c.TransferFilter(&from, &to)
	require.Equal(t, []common.Address{tokenAddr}, q.Addresses)
	require.Equal(t, [][]common.Hash{{transferTopic}}, q.Topics)
	require.Equal(t, big.NewInt(100), q.FromBlock)
	require.Equal(t, big.NewInt(199), q.ToBlock)

	q = c.TransferFilter(nil, nil)
	require.Nil(t, q.FromBlock)
	require.Nil(t, q.ToBlock)
}

func TestERC20Contract_DecodeTransfer(t *testing.T) {
	t.Parallel()

	c := contract.NewERC20Contract(tokenAddr)
	value, _ := new(big.Int).SetString("1000000000000000000000", 10)
	data := common.BigToHash(value).Bytes()

	for _, test := range []struct {
		Name string
		Log  *types.Log
		Err  error
	}{
		{
			Name: "valid transfer",
			Log:  &types.Log{Address: tokenAddr, Topics: []common.Hash{transferTopic, aliceAddr.Hash(), bobAddr.Hash()}, Data: data},
		},
		{
			Name: "foreign contract",
			Log:  &types.Log{Address: aliceAddr, Topics: []common.Hash{transferTopic, aliceAddr.Hash(), bobAddr.Hash()}, Data: data},
			Err:  contract.ErrUnexpectedEvent,
		},
		{
			Name: "approval event",
			Log:  &types.Log{Address: tokenAddr, Topics: []common.Hash{approvalTopic, aliceAddr.Hash(), bobAddr.Hash()}, Data: data},
			Err:  contract.ErrUnexpectedEvent,
		},
		{
			Name: "no topics",
			Log:  &types.Log{Address: tokenAddr, Data: data},
			Err:  abi.ErrInvalidEvent,
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			res, err := c.DecodeTransfer(test.Log)
			if test.Err != nil {
				require.ErrorIs(t, err, test.Err)
				require.Nil(t, res)
				return
			}
			require.NoError(t, err)
			require.Equal(t, aliceAddr, res.From)
			require.Equal(t, bobAddr, res.To)
			require.Equal(t, 0, value.Cmp(res.Value))
			require.Same(t, test.Log, res.Log)
		})
	}
}
