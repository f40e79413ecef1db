package wallet

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/filswan/go-swan-lib/logs"
	"golang.org/x/xerrors"
)

const (
	WalletRepo  = "keystore"
	KNamePrefix = "wallet-"
)

var (
	ErrKeyInfoNotFound = fmt.Errorf("key info not found")
	ErrKeyExists       = fmt.Errorf("key already exists")
)

var reAddress = regexp.MustCompile("^0x[0-9a-fA-F]{40}$")

// SetupWallet opens the keystore under the market repo.
func SetupWallet(repoPath string) (*LocalWallet, error) {
	kstore, err := OpenOrInitKeystore(filepath.Join(repoPath, WalletRepo))
	if err != nil {
		return nil, err
	}
	return NewWallet(kstore)
}

type LocalWallet struct {
	keys     map[string]*KeyInfo
	keystore KeyStore

	lk sync.Mutex
}

func NewWallet(keystore KeyStore) (*LocalWallet, error) {
	w := &LocalWallet{
		keys:     make(map[string]*KeyInfo),
		keystore: keystore,
	}
	return w, nil
}

// KeySigner holds one wallet key for signing chain transactions.
type KeySigner struct {
	address    common.Address
	privateKey string
}

func (s *KeySigner) Address() string {
	return s.address.Hex()
}

// PrivateKey returns the hex key without 0x prefix, as the contract stubs expect.
func (s *KeySigner) PrivateKey() string {
	return s.privateKey
}

// Signer returns the signer for a stored address.
func (w *LocalWallet) Signer(ctx context.Context, addr string) (*KeySigner, error) {
	if !reAddress.MatchString(addr) {
		return nil, xerrors.Errorf("invalid address: %s", addr)
	}
	ki, err := w.findKey(addr)
	if err != nil {
		return nil, err
	}
	if ki == nil {
		return nil, xerrors.Errorf("the address: %s, private key %w", addr, ErrKeyInfoNotFound)
	}
	return &KeySigner{address: common.HexToAddress(addr), privateKey: ki.PrivateKey}, nil
}

func (w *LocalWallet) WalletSign(ctx context.Context, addr string, msg []byte) (string, error) {
	ki, err := w.findKey(addr)
	if err != nil {
		return "", err
	}
	if ki == nil {
		return "", xerrors.Errorf("signing using private key '%s': %w", addr, ErrKeyInfoNotFound)
	}
	signByte, err := Sign(ki.PrivateKey, msg)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(signByte), nil
}

func (w *LocalWallet) WalletVerify(ctx context.Context, addr string, sigByte []byte, data string) (bool, error) {
	return Verify(addr, sigByte, []byte(data))
}

func (w *LocalWallet) findKey(addr string) (*KeyInfo, error) {
	addr = common.HexToAddress(addr).Hex()

	w.lk.Lock()
	defer w.lk.Unlock()

	k, ok := w.keys[addr]
	if ok {
		return k, nil
	}
	if w.keystore == nil {
		logs.GetLogger().Warn("findKey didn't find the key in in-memory wallet")
		return nil, nil
	}

	ki, err := w.keystore.Get(KNamePrefix + addr)
	if err != nil {
		if xerrors.Is(err, ErrKeyInfoNotFound) {
			return nil, nil
		}
		return nil, xerrors.Errorf("getting from keystore: %w", err)
	}

	w.keys[addr] = &ki
	return &ki, nil
}

func (w *LocalWallet) WalletExport(ctx context.Context, addr string) (*KeyInfo, error) {
	k, err := w.findKey(addr)
	if err != nil {
		return nil, xerrors.Errorf("failed to find key to export: %w", err)
	}
	if k == nil {
		return nil, xerrors.Errorf("private key not found for %s", addr)
	}

	return k, nil
}

func (w *LocalWallet) WalletImport(ctx context.Context, ki *KeyInfo) (string, error) {
	if ki == nil || len(strings.TrimSpace(ki.PrivateKey)) == 0 {
		return "", fmt.Errorf("not found private key")
	}
	privateKey := strings.TrimPrefix(strings.TrimSpace(ki.PrivateKey), "0x")

	_, publicKeyECDSA, err := ToPublic(privateKey)
	if err != nil {
		return "", err
	}

	address := crypto.PubkeyToAddress(*publicKeyECDSA).Hex()
	existing, err := w.findKey(address)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", xerrors.Errorf("%s: %w", address, ErrKeyExists)
	}

	key := KeyInfo{PrivateKey: privateKey}
	if err := w.keystore.Put(KNamePrefix+address, key); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.lk.Lock()
	w.keys[address] = &key
	w.lk.Unlock()
	return address, nil
}

func (w *LocalWallet) WalletNew(ctx context.Context) (string, error) {
	w.lk.Lock()
	defer w.lk.Unlock()

	privateK, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	privateKeyBytes := crypto.FromECDSA(privateK)
	privateKey := hexutil.Encode(privateKeyBytes)[2:]

	_, publicKeyECDSA, err := ToPublic(privateKey)
	if err != nil {
		return "", err
	}

	address := crypto.PubkeyToAddress(*publicKeyECDSA).Hex()

	keyInfo := KeyInfo{PrivateKey: privateKey}
	if err := w.keystore.Put(KNamePrefix+address, keyInfo); err != nil {
		return "", xerrors.Errorf("saving to keystore: %w", err)
	}
	w.keys[address] = &keyInfo

	return address, nil
}

func (w *LocalWallet) walletDelete(ctx context.Context, addr string) error {
	k, err := w.findKey(addr)
	if err != nil {
		return xerrors.Errorf("failed to delete key %s : %w", addr, err)
	}
	if k == nil {
		return nil // already not there
	}

	addr = common.HexToAddress(addr).Hex()
	w.lk.Lock()
	defer w.lk.Unlock()

	if err := w.keystore.Delete(KNamePrefix + addr); err != nil {
		return xerrors.Errorf("failed to delete key %s: %w", addr, err)
	}

	delete(w.keys, addr)

	return nil
}

func (w *LocalWallet) WalletDelete(ctx context.Context, addr string) error {
	if err := w.walletDelete(ctx, addr); err != nil {
		return xerrors.Errorf("wallet delete: %w", err)
	}
	return nil
}

// WalletInfo is one row of the wallet listing.
type WalletInfo struct {
	Address string
	Balance string
	Nonce   uint64
	Error   string
}

// WalletList lists the stored addresses. With a client it also reads each
// balance and pending nonce; failures are reported per row.
func (w *LocalWallet) WalletList(ctx context.Context, client *ethclient.Client) ([]WalletInfo, error) {
	addressList, err := w.addressList(ctx)
	if err != nil {
		return nil, err
	}

	wallets := make([]WalletInfo, 0, len(addressList))
	for _, addr := range addressList {
		info := WalletInfo{Address: addr}
		if client != nil {
			balance, err := Balance(ctx, client, addr)
			if err != nil {
				info.Error = err.Error()
			}
			info.Balance = balance

			nonce, err := client.PendingNonceAt(ctx, common.HexToAddress(addr))
			if err != nil {
				info.Error = err.Error()
			}
			info.Nonce = nonce
		}
		wallets = append(wallets, info)
	}
	return wallets, nil
}

// WalletSend transfers amount whole tokens from a stored address.
func (w *LocalWallet) WalletSend(ctx context.Context, client *ethclient.Client, from, to string, amount string) (string, error) {
	if !reAddress.MatchString(to) {
		return "", xerrors.Errorf("invalid recipient address: %s", to)
	}
	ki, err := w.findKey(from)
	if err != nil {
		return "", err
	}
	if ki == nil {
		return "", xerrors.Errorf("the address: %s, private %w,", from, ErrKeyInfoNotFound)
	}

	sendAmount, err := ConvertToWei(amount, 18)
	if err != nil {
		return "", err
	}

	return sendTransaction(ctx, client, ki.PrivateKey, to, sendAmount)
}

func (w *LocalWallet) addressList(ctx context.Context) ([]string, error) {
	all, err := w.keystore.List()
	if err != nil {
		return nil, xerrors.Errorf("listing keystore: %w", err)
	}

	addressList := make([]string, 0, len(all))
	for _, a := range all {
		if strings.HasPrefix(a, KNamePrefix) {
			addr := strings.TrimPrefix(a, KNamePrefix)
			addressList = append(addressList, addr)
		}
	}
	sort.Strings(addressList)
	return addressList, nil
}

// Balance returns the native balance of addr in whole tokens.
func Balance(ctx context.Context, client *ethclient.Client, addr string) (string, error) {
	balance, err := client.BalanceAt(ctx, common.HexToAddress(addr), nil)
	if err != nil {
		return "", err
	}
	return FromWei(balance, 18), nil
}

func sendTransaction(ctx context.Context, client *ethclient.Client, privateKey string, to string, amount *big.Int) (string, error) {
	key, err := crypto.HexToECDSA(privateKey)
	if err != nil {
		return "", xerrors.Errorf("parses private key: %w", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", xerrors.Errorf("address: %s, get nonce: %w", from, err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return "", xerrors.Errorf("address: %s, suggest gas price: %w", from, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return "", xerrors.Errorf("address: %s, get chain id: %w", from, err)
	}

	toAddress := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &toAddress,
		Value:    amount,
		Gas:      21000,
		GasPrice: gasPrice,
	})
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", xerrors.Errorf("sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signedTx); err != nil {
		return "", xerrors.Errorf("send transaction: %w", err)
	}
	logs.GetLogger().Infof("transfer sent, from: %s, to: %s, tx: %s", from.Hex(), to, signedTx.Hash().Hex())
	return signedTx.Hash().Hex(), nil
}

// ConvertToWei turns a decimal token amount into base units.
func ConvertToWei(value string, decimals int) (*big.Int, error) {
	amount, ok := new(big.Rat).SetString(strings.TrimSpace(value))
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %q", value)
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	amount.Mul(amount, new(big.Rat).SetInt(unit))
	if !amount.IsInt() {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	return new(big.Int).Set(amount.Num()), nil
}

// FromWei renders base units as a decimal token amount.
func FromWei(wei *big.Int, decimals int) string {
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	r := new(big.Rat).SetFrac(wei, unit)
	if r.IsInt() {
		return r.Num().String()
	}
	return strings.TrimRight(r.FloatString(decimals), "0")
}
