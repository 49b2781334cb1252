package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"member-onboarding/internal/models"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!@#$%&*?+="
	allChars    = lowerChars + upperChars + digitChars + symbolChars

	minSecretLength = 8
)

// PasswordHasher hashes secrets with a salted adaptive function.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) (bool, error)
}

type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h BcryptHasher) Compare(hash, plain string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return err == nil, err
}

type Argon2idHasher struct {
	Params *argon2id.Params
}

func (h Argon2idHasher) Hash(plain string) (string, error) {
	params := h.Params
	if params == nil {
		params = argon2id.DefaultParams
	}
	return argon2id.CreateHash(plain, params)
}

func (h Argon2idHasher) Compare(hash, plain string) (bool, error) {
	return argon2id.ComparePasswordAndHash(plain, hash)
}

// multiHasher writes with one algorithm and verifies either, so hashes
// written before a configuration change still verify.
type multiHasher struct {
	primary PasswordHasher
	bcrypt  PasswordHasher
	argon   PasswordHasher
}

func (m multiHasher) Hash(plain string) (string, error) {
	return m.primary.Hash(plain)
}

func (m multiHasher) Compare(hash, plain string) (bool, error) {
	if strings.HasPrefix(hash, "$argon2id$") {
		return m.argon.Compare(hash, plain)
	}
	return m.bcrypt.Compare(hash, plain)
}

// NewPasswordHasher selects the hashing algorithm by name.
func NewPasswordHasher(name string, bcryptCost int) (PasswordHasher, error) {
	b := BcryptHasher{Cost: bcryptCost}
	a := Argon2idHasher{}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bcrypt":
		return multiHasher{primary: b, bcrypt: b, argon: a}, nil
	case "argon2id":
		return multiHasher{primary: a, bcrypt: b, argon: a}, nil
	}
	return nil, fmt.Errorf("unknown credential hasher %q", name)
}

// Credential is an issued temporary secret. Plaintext exists only in
// memory until it is handed to the dispatcher.
type Credential struct {
	Plaintext string
	Hash      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type CredentialManager struct {
	hasher PasswordHasher
	length int
	ttl    time.Duration
	random io.Reader
	now    func() time.Time
}

func NewCredentialManager(hasher PasswordHasher, length int, ttl time.Duration) *CredentialManager {
	if length < minSecretLength {
		length = minSecretLength
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CredentialManager{
		hasher: hasher,
		length: length,
		ttl:    ttl,
		random: rand.Reader,
		now:    time.Now,
	}
}

func (c *CredentialManager) TTL() time.Duration {
	return c.ttl
}

// Generate returns a random secret with at least one lowercase letter,
// uppercase letter, digit and symbol.
func (c *CredentialManager) Generate() (string, error) {
	out := make([]byte, 0, c.length)
	for _, set := range []string{lowerChars, upperChars, digitChars, symbolChars} {
		ch, err := c.pick(set)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}
	for len(out) < c.length {
		ch, err := c.pick(allChars)
		if err != nil {
			return "", err
		}
		out = append(out, ch)
	}

	// Fisher-Yates so the class positions are not predictable.
	for i := len(out) - 1; i > 0; i-- {
		j, err := c.intn(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

// GenerateBatch returns n pairwise distinct secrets.
func (c *CredentialManager) GenerateBatch(n int) ([]string, error) {
	seen := make(map[string]struct{}, n)
	secrets := make([]string, 0, n)
	for len(secrets) < n {
		s, err := c.Generate()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		secrets = append(secrets, s)
	}
	return secrets, nil
}

// Seal hashes plaintext and stamps the expiry window.
func (c *CredentialManager) Seal(plaintext string) (Credential, error) {
	hash, err := c.hasher.Hash(plaintext)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to hash temporary secret: %w", err)
	}
	issued := c.now().UTC()
	return Credential{
		Plaintext: plaintext,
		Hash:      hash,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(c.ttl),
	}, nil
}

// Issue generates and seals a single secret.
func (c *CredentialManager) Issue() (Credential, error) {
	plain, err := c.Generate()
	if err != nil {
		return Credential{}, err
	}
	return c.Seal(plain)
}

// Verify reports whether plaintext matches the member's current temporary
// secret. Expiry and consumption are checked separately.
func (c *CredentialManager) Verify(m *models.Member, plaintext string) bool {
	if m.TempSecretHash == nil || *m.TempSecretHash == "" {
		return false
	}
	ok, err := c.hasher.Compare(*m.TempSecretHash, plaintext)
	return err == nil && ok
}

func (c *CredentialManager) IsExpired(m *models.Member, now time.Time) bool {
	return m.TempSecretExpired(now)
}

// HashPassword hashes a permanent password chosen during activation.
func (c *CredentialManager) HashPassword(plain string) (string, error) {
	return c.hasher.Hash(plain)
}

func (c *CredentialManager) pick(set string) (byte, error) {
	i, err := c.intn(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func (c *CredentialManager) intn(n int) (int, error) {
	v, err := rand.Int(c.random, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}
