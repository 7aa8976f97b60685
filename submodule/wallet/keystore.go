package wallet

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	cr "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/xerrors"
)

const (
	keyHeaderKDF  = "scrypt"
	latestVersion = 3

	// StandardScryptN is the N parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptN = 1 << 18
	// StandardScryptP is the P parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptP = 1

	// LightScryptN trades security for speed, used by tests.
	LightScryptN = 1 << 12
	LightScryptP = 6

	scryptR     = 8
	scryptDKLen = 32
)

// Key the struct privatekey transform to
type Key struct {
	Id uuid.UUID

	// to simplify lookups we also store the address
	Address common.Address
	// we only store privkey as pubkey/address can be derived from it
	// privkey in this struct is always in plaintext
	PrivateKey *ecdsa.PrivateKey
}

type cipherparamsJSON struct {
	IV string `json:"iv"`
}

type CryptoJSON struct {
	Cipher       string                 `json:"cipher"`
	CipherText   string                 `json:"ciphertext"`
	CipherParams cipherparamsJSON       `json:"cipherparams"`
	KDF          string                 `json:"kdf"`
	KDFParams    map[string]interface{} `json:"kdfparams"`
	MAC          string                 `json:"mac"`
}

type encryptedKeyJSONV3 struct {
	Address string     `json:"address"`
	Crypto  CryptoJSON `json:"crypto"`
	Id      string     `json:"id"`
	Version int        `json:"version"`
}

func newKey(sk *ecdsa.PrivateKey) (*Key, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	return &Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(sk.PublicKey),
		PrivateKey: sk,
	}, nil
}

// keyFile names a keyfile by its lower-case hex address.
func keyFile(dir string, addr common.Address) string {
	return joinPath(dir, hex.EncodeToString(addr.Bytes()))
}

// storeKey encrypts the key with password and writes it into dir.
func storeKey(dir string, key *Key, password string, scryptN, scryptP int) error {
	keyjson, err := encryptKey(key, password, scryptN, scryptP)
	if err != nil {
		return err
	}
	return writeKeyFile(keyFile(dir, key.Address), keyjson)
}

// loadKey reads and decrypts the keyfile of addr.
func loadKey(dir string, addr common.Address, password string) (*Key, error) {
	keyjson, err := ioutil.ReadFile(keyFile(dir, addr))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	key, err := decryptKey(keyjson, password)
	if err != nil {
		return nil, err
	}
	// Make sure we're really operating on the requested key (no swap attacks)
	if key.Address != addr {
		zeroKey(key.PrivateKey)
		return nil, fmt.Errorf("key content mismatch: have account %x, want %x", key.Address, addr)
	}
	return key, nil
}

func joinPath(dir string, filename string) (path string) {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(dir, filename)
}

// encryptKey encrypts a key using the specified scrypt parameters into a json
// blob that can be decrypted later on.
func encryptKey(key *Key, password string, scryptN, scryptP int) ([]byte, error) {
	keyBytes := crypto.FromECDSA(key.PrivateKey)
	defer zeroBytes(keyBytes)

	salt := getEntropyCSPRNG(32)
	derivedKey, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}
	encryptKey := derivedKey[:16]

	iv := getEntropyCSPRNG(aes.BlockSize) // 16, aes-128-ctr
	cipherText, err := aesCTRXOR(encryptKey, keyBytes, iv)
	if err != nil {
		return nil, err
	}
	// the mac proves the password on decryption
	mac := crypto.Keccak256(derivedKey[16:32], cipherText)

	scryptParamsJSON := make(map[string]interface{}, 5)
	scryptParamsJSON["n"] = scryptN
	scryptParamsJSON["r"] = scryptR
	scryptParamsJSON["p"] = scryptP
	scryptParamsJSON["dklen"] = scryptDKLen
	scryptParamsJSON["salt"] = hex.EncodeToString(salt)

	cryptoStruct := CryptoJSON{
		Cipher:       "aes-128-ctr",
		CipherText:   hex.EncodeToString(cipherText),
		CipherParams: cipherparamsJSON{IV: hex.EncodeToString(iv)},
		KDF:          keyHeaderKDF,
		KDFParams:    scryptParamsJSON,
		MAC:          hex.EncodeToString(mac),
	}
	return json.Marshal(encryptedKeyJSONV3{
		hex.EncodeToString(key.Address.Bytes()),
		cryptoStruct,
		key.Id.String(),
		latestVersion,
	})
}

// decryptKey decrypts a key from a json blob, returning the private key itself.
func decryptKey(keyjson []byte, password string) (*Key, error) {
	k := new(encryptedKeyJSONV3)
	if err := json.Unmarshal(keyjson, k); err != nil {
		return nil, err
	}
	if k.Version != latestVersion {
		return nil, xerrors.Errorf("keyfile version %d not supported", k.Version)
	}

	keyBytes, err := decryptKeyV3(k, password)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(keyBytes)

	sk, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(k.Id)
	if err != nil {
		return nil, err
	}

	return &Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(sk.PublicKey),
		PrivateKey: sk,
	}, nil
}

func decryptKeyV3(k *encryptedKeyJSONV3, password string) ([]byte, error) {
	if k.Crypto.Cipher != "aes-128-ctr" {
		return nil, xerrors.Errorf("cipher not supported: %v", k.Crypto.Cipher)
	}
	if k.Crypto.KDF != keyHeaderKDF {
		return nil, xerrors.Errorf("kdf not supported: %v", k.Crypto.KDF)
	}

	mac, err := hex.DecodeString(k.Crypto.MAC)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(k.Crypto.CipherParams.IV)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(k.Crypto.CipherText)
	if err != nil {
		return nil, err
	}

	derivedKey, err := getKDFKey(k.Crypto, password)
	if err != nil {
		return nil, err
	}

	calculatedMAC := crypto.Keccak256(derivedKey[16:32], cipherText)
	if !bytes.Equal(calculatedMAC, mac) {
		return nil, ErrDecrypt
	}

	return aesCTRXOR(derivedKey[:16], cipherText, iv)
}

func getKDFKey(cj CryptoJSON, password string) ([]byte, error) {
	saltHex, ok := cj.KDFParams["salt"].(string)
	if !ok {
		return nil, xerrors.New("kdf salt missing")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, err
	}
	dkLen := ensureInt(cj.KDFParams["dklen"])
	if dkLen < 32 {
		// aes key plus mac key
		return nil, xerrors.Errorf("kdf dklen %d below 32", dkLen)
	}
	n := ensureInt(cj.KDFParams["n"])
	r := ensureInt(cj.KDFParams["r"])
	p := ensureInt(cj.KDFParams["p"])
	return scrypt.Key([]byte(password), salt, n, r, p, dkLen)
}

// json numbers decode as float64
func ensureInt(x interface{}) int {
	res, ok := x.(int)
	if !ok {
		f, _ := x.(float64)
		res = int(f)
	}
	return res
}

func aesCTRXOR(key, inText, iv []byte) ([]byte, error) {
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(aesBlock, iv)
	outText := make([]byte, len(inText))
	stream.XORKeyStream(outText, inText)
	return outText, nil
}

func getEntropyCSPRNG(n int) []byte {
	mainBuff := make([]byte, n)
	_, err := io.ReadFull(cr.Reader, mainBuff)
	if err != nil {
		panic("reading from crypto/rand failed: " + err.Error())
	}
	return mainBuff
}

// zeroKey wipes a private key in memory.
func zeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	b := k.D.Bits()
	for i := range b {
		b[i] = 0
	}
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func writeTemporaryKeyFile(file string, content []byte) (string, error) {
	// Create the keystore directory with appropriate permissions
	// in case it is not present yet.
	const dirPerm = 0700
	if err := os.MkdirAll(filepath.Dir(file), dirPerm); err != nil {
		return "", err
	}
	// Atomic write: create a temporary hidden file first
	// then move it into place. TempFile assigns mode 0600.
	f, err := ioutil.TempFile(filepath.Dir(file), "."+filepath.Base(file)+".tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	f.Close()
	return f.Name(), nil
}

func writeKeyFile(file string, content []byte) error {
	name, err := writeTemporaryKeyFile(file, content)
	if err != nil {
		return err
	}
	return os.Rename(name, file)
}
