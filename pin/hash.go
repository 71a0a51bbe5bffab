package pin

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/vdutts/vault/internal/util"
)

// Scheme names the digest format of a stored PIN.
type Scheme string

const (
	// SchemeArgon2id is a salted Argon2id digest stored as a JSON record.
	SchemeArgon2id Scheme = "argon2id"
	// SchemeSHA256 is the unsalted lowercase-hex SHA-256 digest written by
	// earlier releases. Stored as a bare 64-character string.
	SchemeSHA256 Scheme = "sha256"
)

const (
	hashRecordVersion = 1
	saltLen           = 16
)

// KDFParams configures Argon2id derivation of the PIN digest.
type KDFParams = util.Argon2idParams

// DefaultKDFParams returns the Argon2id parameters used for new PINs.
func DefaultKDFParams() KDFParams {
	return util.DefaultArgon2idParams()
}

type hashRecord struct {
	Ver    int        `json:"ver"`
	Scheme Scheme     `json:"scheme"`
	Salt   []byte     `json:"salt,omitempty"`
	Hash   []byte     `json:"hash"`
	Params *KDFParams `json:"params,omitempty"`

	// Digest is the lowercase hex form of a SchemeSHA256 record.
	Digest string `json:"-"`
}

func newArgon2idRecord(pin string, params KDFParams) (*hashRecord, error) {
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return nil, err
	}
	key, err := util.DeriveArgon2idKey(pin, salt, params)
	if err != nil {
		return nil, err
	}
	p := params
	return &hashRecord{
		Ver:    hashRecordVersion,
		Scheme: SchemeArgon2id,
		Salt:   salt,
		Hash:   key,
		Params: &p,
	}, nil
}

func newSHA256Record(pin string) *hashRecord {
	return &hashRecord{Ver: hashRecordVersion, Scheme: SchemeSHA256, Digest: util.SHA256Hex(pin)}
}

func encodeRecord(rec *hashRecord) ([]byte, error) {
	if rec.Scheme == SchemeSHA256 {
		return []byte(rec.Digest), nil
	}
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (*hashRecord, error) {
	if len(data) == 2*sha256.Size {
		if sum, err := hex.DecodeString(string(data)); err == nil {
			return &hashRecord{Ver: hashRecordVersion, Scheme: SchemeSHA256, Digest: hex.EncodeToString(sum)}, nil
		}
	}
	var rec hashRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding pin hash record: %w", err)
	}
	if rec.Ver != hashRecordVersion {
		return nil, fmt.Errorf("unsupported pin hash record version: %d", rec.Ver)
	}
	if rec.Scheme != SchemeArgon2id || rec.Params == nil || len(rec.Salt) == 0 {
		return nil, fmt.Errorf("unsupported pin hash scheme: %q", rec.Scheme)
	}
	return &rec, nil
}

func (r *hashRecord) matches(pin string) (bool, error) {
	switch r.Scheme {
	case SchemeSHA256:
		return subtle.ConstantTimeCompare([]byte(util.SHA256Hex(pin)), []byte(r.Digest)) == 1, nil
	case SchemeArgon2id:
		return util.CompareArgon2idKey(pin, r.Salt, *r.Params, r.Hash)
	default:
		return false, fmt.Errorf("unsupported pin hash scheme: %q", r.Scheme)
	}
}
