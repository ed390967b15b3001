package fetch

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"fmt"

	"github.com/gftdcojp/wxmedia/internal/types"
)

// ECBPrefixSize is how much of a locally stored emoji is encrypted.
const ECBPrefixSize = 1024

// DecryptCBC decrypts data with AES-CBC. The hex-decoded key doubles as the
// IV and no padding is stripped.
func DecryptCBC(data []byte, keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding aes key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size: %w", len(data), types.ErrFailed)
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(out, data)
	return out, nil
}

// DecryptECBPrefix decrypts the first prefix bytes of data with AES-ECB and
// returns them followed by the untouched remainder.
func DecryptECBPrefix(data, key []byte, prefix int) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	head := min(prefix, len(data))
	if head == 0 || head%aes.BlockSize != 0 {
		return nil, fmt.Errorf("encrypted head of %d bytes is not block aligned: %w", head, types.ErrFailed)
	}

	out := make([]byte, len(data))
	for i := 0; i < head; i += aes.BlockSize {
		block.Decrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	copy(out[head:], data[head:])
	return out, nil
}
