package protocol

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const aavePoolABIJSON = `[
	{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserAccountData","outputs":[
		{"internalType":"uint256","name":"totalCollateralBase","type":"uint256"},
		{"internalType":"uint256","name":"totalDebtBase","type":"uint256"},
		{"internalType":"uint256","name":"availableBorrowsBase","type":"uint256"},
		{"internalType":"uint256","name":"currentLiquidationThreshold","type":"uint256"},
		{"internalType":"uint256","name":"ltv","type":"uint256"},
		{"internalType":"uint256","name":"healthFactor","type":"uint256"}
	],"stateMutability":"view","type":"function"}
]`

const wstethABIJSON = `[
	{"inputs":[],"name":"stEthPerToken","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// rateABIJSON covers weETH and the vault accountant, both expose getRate().
const rateABIJSON = `[
	{"inputs":[],"name":"getRate","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const beefyVaultABIJSON = `[
	{"inputs":[],"name":"getPricePerFullShare","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"want","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

var (
	abiInitOnce   sync.Once
	erc20ABI      abi.ABI
	aavePoolABI   abi.ABI
	wstethABI     abi.ABI
	rateABI       abi.ABI
	beefyVaultABI abi.ABI
)

func initABIs() {
	abiInitOnce.Do(func() {
		parse := func(name, raw string) abi.ABI {
			parsed, err := abi.JSON(strings.NewReader(raw))
			if err != nil {
				panic(fmt.Sprintf("failed to parse %s ABI: %v", name, err))
			}
			return parsed
		}
		erc20ABI = parse("erc20", erc20ABIJSON)
		aavePoolABI = parse("aave pool", aavePoolABIJSON)
		wstethABI = parse("wsteth", wstethABIJSON)
		rateABI = parse("rate", rateABIJSON)
		beefyVaultABI = parse("beefy vault", beefyVaultABIJSON)
	})
}

func balanceOfData(owner common.Address) ([]byte, error) {
	initABIs()
	return erc20ABI.Pack("balanceOf", owner)
}

func decimalsData() []byte {
	initABIs()
	return erc20ABI.Methods["decimals"].ID
}

func userAccountDataCalldata(user common.Address) ([]byte, error) {
	initABIs()
	return aavePoolABI.Pack("getUserAccountData", user)
}

func stEthPerTokenData() []byte {
	initABIs()
	return wstethABI.Methods["stEthPerToken"].ID
}

func rateData() []byte {
	initABIs()
	return rateABI.Methods["getRate"].ID
}

func pricePerFullShareData() []byte {
	initABIs()
	return beefyVaultABI.Methods["getPricePerFullShare"].ID
}

func wantData() []byte {
	initABIs()
	return beefyVaultABI.Methods["want"].ID
}

func unpackSingleBigInt(parsed abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 output, got %d", method, len(out))
	}
	value, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected output type %T", method, out[0])
	}
	return value, nil
}

func unpackBalance(data []byte) (*big.Int, error) {
	initABIs()
	return unpackSingleBigInt(erc20ABI, "balanceOf", data)
}

func unpackDecimals(data []byte) (uint8, error) {
	initABIs()
	out, err := erc20ABI.Unpack("decimals", data)
	if err != nil {
		return 0, fmt.Errorf("unpack decimals: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("unpack decimals: expected 1 output, got %d", len(out))
	}
	value, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unpack decimals: unexpected output type %T", out[0])
	}
	return value, nil
}

func unpackStEthPerToken(data []byte) (*big.Int, error) {
	initABIs()
	return unpackSingleBigInt(wstethABI, "stEthPerToken", data)
}

func unpackRate(data []byte) (*big.Int, error) {
	initABIs()
	return unpackSingleBigInt(rateABI, "getRate", data)
}

func unpackPricePerFullShare(data []byte) (*big.Int, error) {
	initABIs()
	return unpackSingleBigInt(beefyVaultABI, "getPricePerFullShare", data)
}

func unpackWant(data []byte) (common.Address, error) {
	initABIs()
	out, err := beefyVaultABI.Unpack("want", data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack want: %w", err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("unpack want: expected 1 output, got %d", len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unpack want: unexpected output type %T", out[0])
	}
	return addr, nil
}

// accountData is the decoded result of Aave's getUserAccountData. Base
// currency amounts use 8 decimals, the health factor uses 18.
type accountData struct {
	TotalCollateralBase         *big.Int
	TotalDebtBase               *big.Int
	AvailableBorrowsBase        *big.Int
	CurrentLiquidationThreshold *big.Int
	LTV                         *big.Int
	HealthFactor                *big.Int
}

func unpackUserAccountData(data []byte) (accountData, error) {
	initABIs()
	out, err := aavePoolABI.Unpack("getUserAccountData", data)
	if err != nil {
		return accountData{}, fmt.Errorf("unpack getUserAccountData: %w", err)
	}
	if len(out) != 6 {
		return accountData{}, fmt.Errorf("unpack getUserAccountData: expected 6 outputs, got %d", len(out))
	}

	fields := make([]*big.Int, 6)
	for i, raw := range out {
		value, ok := raw.(*big.Int)
		if !ok {
			return accountData{}, fmt.Errorf("unpack getUserAccountData: output %d has type %T", i, raw)
		}
		fields[i] = value
	}

	return accountData{
		TotalCollateralBase:         fields[0],
		TotalDebtBase:               fields[1],
		AvailableBorrowsBase:        fields[2],
		CurrentLiquidationThreshold: fields[3],
		LTV:                         fields[4],
		HealthFactor:                fields[5],
	}, nil
}
