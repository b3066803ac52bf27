package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/uptrace/bun"
)

const (
	// InviteCodeAlphabet omits 0, O, 1 and I.
	InviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	InviteCodeLength   = 6
	// MaxInviteCodeAttempts bounds collision retries.
	MaxInviteCodeAttempts = 100
	// InviteQRPrefix prefixes invite codes rendered as QR content.
	InviteQRPrefix = "FAMILY_INVITE:"
)

// CodeSource produces candidate invite codes.
type CodeSource func() (string, error)

// RandomInviteCode draws InviteCodeLength symbols from InviteCodeAlphabet
// using crypto/rand.
func RandomInviteCode() (string, error) {
	max := big.NewInt(int64(len(InviteCodeAlphabet)))
	b := make([]byte, InviteCodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = InviteCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeInviteCode trims and upper cases user input. It reports false
// when the result is not a well formed code.
func NormalizeInviteCode(code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.TrimPrefix(code, InviteQRPrefix)
	if len(code) != InviteCodeLength {
		return code, false
	}
	for _, r := range code {
		if !strings.ContainsRune(InviteCodeAlphabet, r) {
			return code, false
		}
	}
	return code, true
}

// InviteQRContent is the payload encoded in invite QR codes.
func InviteQRContent(code string) string {
	return InviteQRPrefix + code
}

// inviteCodeGenerator allocates codes unique among active families.
type inviteCodeGenerator struct {
	families    Families
	source      CodeSource
	maxAttempts int
	logger      Logger
}

func (g inviteCodeGenerator) Generate(ctx context.Context, tx bun.IDB) (string, error) {
	source := g.source
	if source == nil {
		source = RandomInviteCode
	}

	attempts := g.maxAttempts
	if attempts <= 0 {
		attempts = MaxInviteCodeAttempts
	}

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", storeError(err, "generate invite code")
		}

		code, err := source()
		if err != nil {
			return "", withSource(ErrInviteCodeExhausted, err, nil)
		}

		inUse, err := g.families.InviteCodeInUseTx(ctx, tx, code)
		if err != nil {
			return "", err
		}

		if !inUse {
			return code, nil
		}
	}

	g.logger.Warn("invite code keyspace congested, giving up",
		"attempts", attempts,
		"alphabet", len(InviteCodeAlphabet),
		"length", InviteCodeLength,
	)

	return "", withSource(ErrInviteCodeExhausted, nil, map[string]any{"attempts": attempts})
}
