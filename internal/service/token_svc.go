package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/model"
	"github.com/sosialistaflokkurinn/ekklesia-elections/pkg/token"
)

// MaxTokenBatch caps a single issuance; the roll service never supplies
// more eligible members than this.
const MaxTokenBatch = 10000

// TokenBatch holds a freshly minted batch: the stored rows and the one-time
// plaintext views. The plaintexts exist only in memory on their way to the
// caller.
type TokenBatch struct {
	BatchID uuid.UUID
	Stored  []model.VotingToken
	Issued  []model.IssuedToken
}

// MintBatch generates count tokens for an election, all expiring at the
// voting-window end. The batch itself maps 1:1 to eligible members but
// carries no member data — only the count.
func MintBatch(electionID uuid.UUID, count int, expiresAt time.Time) (*TokenBatch, error) {
	if count < 0 || count > MaxTokenBatch {
		return nil, model.NewValidationError("eligibleMemberCount",
			fmt.Sprintf("must be between 0 and %d", MaxTokenBatch))
	}

	batch := &TokenBatch{
		BatchID: uuid.New(),
		Stored:  make([]model.VotingToken, 0, count),
		Issued:  make([]model.IssuedToken, 0, count),
	}

	for i := 0; i < count; i++ {
		m, err := token.Mint()
		if err != nil {
			return nil, fmt.Errorf("mint token %d/%d: %w", i+1, count, err)
		}
		batch.Stored = append(batch.Stored, model.VotingToken{
			ID:             m.ID,
			ElectionID:     electionID,
			BatchID:        batch.BatchID,
			TokenHash:      m.Hash,
			Salt:           m.Salt,
			ExpiresAt:      expiresAt,
			IssuedForCount: count,
		})
		batch.Issued = append(batch.Issued, model.IssuedToken{
			Token:     m.Plaintext,
			ExpiresAt: expiresAt,
		})
	}

	return batch, nil
}

// issuanceDetails is the audit payload for a token mint; it records counts
// only, never token material.
func issuanceDetails(batchID uuid.UUID, count int, expiresAt time.Time) []byte {
	b, _ := json.Marshal(map[string]any{
		"batchId":   batchID,
		"count":     count,
		"expiresAt": expiresAt,
	})
	return b
}
