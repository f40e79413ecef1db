package core

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

type Stub struct {
	client   *ethclient.Client
	core     *JobCore
	address  common.Address
	privateK string
}

type Option func(*Stub)

func WithPrivateKey(pk string) Option {
	return func(obj *Stub) {
		obj.privateK = pk
	}
}

func NewCoreStub(client *ethclient.Client, contractAddress string, options ...Option) (*Stub, error) {
	stub := &Stub{}
	for _, option := range options {
		option(stub)
	}

	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("invalid job core contract address: %q", contractAddress)
	}
	stub.address = common.HexToAddress(contractAddress)
	coreClient, err := NewJobCore(stub.address, client)
	if err != nil {
		return nil, fmt.Errorf("create job core contract client, error: %+v", err)
	}

	stub.core = coreClient
	stub.client = client
	return stub, nil
}

func (s *Stub) LatestBlock(ctx context.Context) (uint64, error) {
	return s.client.BlockNumber(ctx)
}

// JobCreatedEvents returns the JobCreated logs emitted in [from, to].
func (s *Stub) JobCreatedEvents(ctx context.Context, from, to uint64) ([]*JobCoreJobCreated, error) {
	iter, err := s.core.FilterJobCreated(&bind.FilterOpts{Start: from, End: &to, Context: ctx}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("filter JobCreated logs in [%d, %d], error: %+v", from, to, err)
	}
	defer iter.Close()

	var events []*JobCoreJobCreated
	for iter.Next() {
		events = append(events, iter.Event)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("read JobCreated logs in [%d, %d], error: %+v", from, to, err)
	}
	return events, nil
}

func (s *Stub) TotalStats(ctx context.Context) (JobCoreTotalStats, error) {
	return s.core.GetTotalStats(&bind.CallOpts{Context: ctx})
}

// CreateJob sends createJob with reward as the transaction value, waits for it to
// be mined and returns the JobCreated event from the receipt.
func (s *Stub) CreateJob(ctx context.Context, description string, requiredNodes int, deadline time.Time, reward *big.Int) (*JobCoreJobCreated, error) {
	publicAddress, err := s.privateKeyToPublicKey()
	if err != nil {
		return nil, err
	}

	txOptions, err := s.createTransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("address: %s, job core client create transaction, error: %+v", publicAddress, err)
	}
	txOptions.Value = reward

	transaction, err := s.core.CreateJob(txOptions, description, big.NewInt(int64(requiredNodes)), big.NewInt(deadline.Unix()))
	if err != nil {
		return nil, fmt.Errorf("address: %s, job core createJob, error: %+v", publicAddress, err)
	}

	receipt, err := bind.WaitMined(ctx, s.client, transaction)
	if err != nil {
		return nil, fmt.Errorf("tx: %s, wait for receipt, error: %+v", transaction.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx: %s, createJob reverted", transaction.Hash())
	}

	for _, log := range receipt.Logs {
		if log.Address != s.address {
			continue
		}
		event, err := s.core.ParseJobCreated(*log)
		if err != nil {
			continue
		}
		return event, nil
	}
	return nil, fmt.Errorf("tx: %s, no JobCreated event in receipt", transaction.Hash())
}

func (s *Stub) privateKeyToPublicKey() (common.Address, error) {
	if len(strings.TrimSpace(s.privateK)) == 0 {
		return common.Address{}, fmt.Errorf("wallet address private key must be not empty")
	}

	privateKey, err := crypto.HexToECDSA(s.privateK)
	if err != nil {
		return common.Address{}, fmt.Errorf("parses private key error: %+v", err)
	}

	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return common.Address{}, fmt.Errorf("cannot assert type: publicKey is not of type *ecdsa.PublicKey")
	}
	return crypto.PubkeyToAddress(*publicKeyECDSA), nil
}

func (s *Stub) createTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	publicAddress, err := s.privateKeyToPublicKey()
	if err != nil {
		return nil, err
	}

	nonce, err := s.client.PendingNonceAt(ctx, publicAddress)
	if err != nil {
		return nil, fmt.Errorf("address: %s, job core client get nonce error: %+v", publicAddress, err)
	}

	suggestGasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("address: %s, job core client retrieves the currently suggested gas price, error: %+v", publicAddress, err)
	}

	chainId, err := s.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("address: %s, job core client get networkId, error: %+v", publicAddress, err)
	}

	privateKey, err := crypto.HexToECDSA(s.privateK)
	if err != nil {
		return nil, fmt.Errorf("parses private key error: %+v", err)
	}

	txOptions, err := bind.NewKeyedTransactorWithChainID(privateKey, chainId)
	if err != nil {
		return nil, fmt.Errorf("address: %s, job core client create transaction, error: %+v", publicAddress, err)
	}
	txOptions.Nonce = big.NewInt(int64(nonce))
	suggestGasPrice = suggestGasPrice.Mul(suggestGasPrice, big.NewInt(3))
	suggestGasPrice = suggestGasPrice.Div(suggestGasPrice, big.NewInt(2))
	txOptions.GasFeeCap = suggestGasPrice
	txOptions.Context = ctx
	return txOptions, nil
}
