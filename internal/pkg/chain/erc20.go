package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

var erc20 abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		panic("invalid erc20 abi: " + err.Error())
	}
	erc20 = parsed
}

func TransferCalldata(to string, amount *big.Int) ([]byte, error) {
	return erc20.Pack("transfer", common.HexToAddress(to), amount)
}

func ApproveCalldata(spender string, amount *big.Int) ([]byte, error) {
	return erc20.Pack("approve", common.HexToAddress(spender), amount)
}
