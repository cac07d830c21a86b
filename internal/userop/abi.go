package userop

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// AccountABIJSON is the call-data interface of an account.
const AccountABIJSON = `
[
	{
		"type": "function",
		"name": "execute",
		"inputs": [
			{"name": "dest", "type": "address"},
			{"name": "value", "type": "uint256"},
			{"name": "functionData", "type": "bytes"}
		],
		"outputs": [
			{"name": "result", "type": "bytes"}
		]
	},
	{
		"type": "function",
		"name": "owner",
		"inputs": [],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function",
		"name": "getEntryPoint",
		"inputs": [],
		"outputs": [{"name": "", "type": "address"}]
	},
	{
		"type": "function",
		"name": "transferOwnership",
		"inputs": [{"name": "newOwner", "type": "address"}],
		"outputs": []
	}
]`

// AccountABI is the parsed AccountABIJSON.
var AccountABI = mustParseABI(AccountABIJSON)

// ExecuteCallData packs execute(dest, value, functionData).
func ExecuteCallData(dest common.Address, value *big.Int, functionData []byte) ([]byte, error) {
	if functionData == nil {
		functionData = []byte{}
	}
	return AccountABI.Pack("execute", dest, SafeBig(value), functionData)
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
