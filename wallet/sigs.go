package wallet

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Sign hashes msg with keccak256 and signs it with the hex encoded private key.
func Sign(privatekey string, msg []byte) ([]byte, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privatekey, "0x"))
	if err != nil {
		return nil, err
	}

	hash := crypto.Keccak256Hash(msg)
	return crypto.Sign(hash.Bytes(), privateKey)
}

// Verify reports whether sig is a signature of msg by the holder of address.
func Verify(address string, sig []byte, msg []byte) (bool, error) {
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("invalid signature length %d", len(sig))
	}
	hash := crypto.Keccak256Hash(msg)

	publicKey, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return false, err
	}
	signer := crypto.PubkeyToAddress(*publicKey)
	if !strings.EqualFold(signer.Hex(), address) {
		return false, nil
	}

	publicKeyBytes := crypto.FromECDSAPub(publicKey)
	return crypto.VerifySignature(publicKeyBytes, hash.Bytes(), sig[:len(sig)-1]), nil
}

// ToPublic converts private key to public key
func ToPublic(priv string) (string, *ecdsa.PublicKey, error) {
	priv = strings.TrimPrefix(strings.TrimSpace(priv), "0x")
	if priv == "" {
		return "", nil, fmt.Errorf("invalid private key")
	}

	privateKeyBytes, err := hex.DecodeString(priv)
	if err != nil {
		return "", nil, err
	}

	privateKey, err := crypto.ToECDSA(privateKeyBytes)
	if err != nil {
		return "", nil, err
	}

	publicKey := privateKey.Public()
	publicKeyECDSA, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return "", nil, fmt.Errorf("cannot assert type: publicKey is not of type *ecdsa.PublicKey")
	}

	publicKeyBytes := crypto.FromECDSAPub(publicKeyECDSA)
	return hex.EncodeToString(bytes.TrimPrefix(publicKeyBytes, []byte{0x04})), publicKeyECDSA, nil
}
