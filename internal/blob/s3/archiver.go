package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Archiver uploads completed match transcripts to cold storage. The primary
// rows stay in Postgres; the archive is the long-term replay document served
// back to clients after the live channel is gone.
type Archiver struct {
	writer domain.BlobWriter
}

// NewArchiver creates an Archiver writing through the given BlobWriter.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer}
}

// transcript is the archived document layout. Round payloads are embedded
// as-is; the arena tag tells readers how to interpret them.
type transcript struct {
	MatchID     string                `json:"match_id"`
	Arena       domain.Arena          `json:"arena"`
	Agent1ID    string                `json:"agent1_id"`
	Agent2ID    *string               `json:"agent2_id"`
	WinnerID    *string               `json:"winner_id,omitempty"`
	FinalSplit1 float64               `json:"final_split1"`
	FinalSplit2 float64               `json:"final_split2"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	EndedAt     *time.Time            `json:"ended_at,omitempty"`
	Rounds      []transcriptRound     `json:"rounds"`
	Messages    []domain.MatchMessage `json:"messages"`
	ArchivedAt  time.Time             `json:"archived_at"`
}

type transcriptRound struct {
	Round      int              `json:"round"`
	Data       domain.RoundData `json:"data"`
	Accepted   bool             `json:"accepted"`
	AcceptedBy *string          `json:"accepted_by,omitempty"`
}

// Archive serializes the match transcript and uploads it, returning the
// storage key. Keys are partitioned by match start month so buckets stay
// browsable.
func (a *Archiver) Archive(ctx context.Context, m domain.Match, rounds []domain.RoundRecord, msgs []domain.MatchMessage) (string, error) {
	doc := transcript{
		MatchID:     m.ID,
		Arena:       m.Arena,
		Agent1ID:    m.Agent1ID,
		Agent2ID:    m.Agent2ID,
		WinnerID:    m.WinnerID,
		FinalSplit1: m.FinalSplit1,
		FinalSplit2: m.FinalSplit2,
		StartedAt:   m.StartedAt,
		EndedAt:     m.EndedAt,
		Messages:    msgs,
		ArchivedAt:  time.Now().UTC(),
	}
	for _, r := range rounds {
		doc.Rounds = append(doc.Rounds, transcriptRound{
			Round:      r.Round,
			Data:       r.Data,
			Accepted:   r.Accepted,
			AcceptedBy: r.AcceptedBy,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode transcript %s: %w", m.ID, err)
	}

	key := transcriptKey(m)
	if err := a.writer.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload transcript %s: %w", m.ID, err)
	}
	return key, nil
}

func transcriptKey(m domain.Match) string {
	month := m.CreatedAt
	if m.StartedAt != nil {
		month = *m.StartedAt
	}
	return fmt.Sprintf("transcripts/%s/%s.json", month.Format("2006-01"), m.ID)
}
