package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/alanyoungcy/agentarena/internal/domain"
)

// Settlement refs shared between market creation and result mapping.
const (
	refDeal     = "deal"
	refNoDeal   = "no_deal"
	refDecisive = "decisive"
	refNarrow   = "narrow"
)

// decisiveMargin is the final-split gap (in percentage points) above which
// an auction win counts as decisive.
const decisiveMargin = 10.0

// SettleAll settles every market of a finished match against the result.
// Markets with no winning outcome (a draw on the winner market, for example)
// are cancelled with all bets refunded. Settlement is exactly-once: markets
// already settled or cancelled are skipped by the store layer.
func (m *Maker) SettleAll(ctx context.Context, res domain.MatchResult) error {
	markets, err := m.markets.ListByMatch(ctx, res.MatchID)
	if err != nil {
		return fmt.Errorf("market: list for settlement: %w", err)
	}

	for _, mk := range markets {
		ref, ok := m.winningRef(mk, res)
		if !ok {
			settled, err := m.markets.CancelRefund(ctx, mk.ID)
			if err != nil {
				return fmt.Errorf("market: cancel %s: %w", mk.ID, err)
			}
			m.notifyBets(ctx, settled)
			continue
		}

		optionID := ""
		for _, o := range mk.Options {
			if o.Ref == ref {
				optionID = o.ID
				break
			}
		}
		if optionID == "" {
			return fmt.Errorf("market: %s has no option for outcome %q", mk.ID, ref)
		}

		settled, err := m.markets.Settle(ctx, mk.ID, optionID)
		if err != nil {
			return fmt.Errorf("market: settle %s: %w", mk.ID, err)
		}
		m.notifyBets(ctx, settled)

		m.logger.InfoContext(ctx, "market settled",
			slog.String("market_id", mk.ID),
			slog.String("type", string(mk.Type)),
			slog.String("outcome", ref),
			slog.Int("bets", len(settled)),
		)
	}
	return nil
}

// winningRef maps the match result to the winning option ref of a market.
// The second return is false when the market has no winner and must refund.
func (m *Maker) winningRef(mk domain.Market, res domain.MatchResult) (string, bool) {
	switch mk.Type {
	case domain.MarketWinner:
		if res.WinnerID == nil {
			return "", false
		}
		return *res.WinnerID, true

	case domain.MarketAgreement:
		if isMarginFraming(&mk) {
			if math.Abs(res.Split1-res.Split2) >= decisiveMargin {
				return refDecisive, true
			}
			return refNarrow, true
		}
		if res.Agreed {
			return refDeal, true
		}
		return refNoDeal, true

	case domain.MarketRounds:
		for _, o := range mk.Options {
			lo, hi, ok := parseBucket(o.Ref)
			if ok && res.TotalRounds >= lo && res.TotalRounds <= hi {
				return o.Ref, true
			}
		}
		return "", false
	}
	return "", false
}

// notifyBets upserts one settlement notification per bet. The upsert is
// keyed by the bet ID, so replaying settlement rewrites the same rows
// instead of duplicating them. Failures are logged, never propagated: the
// money already moved in the settlement transaction.
func (m *Maker) notifyBets(ctx context.Context, bets []domain.Bet) {
	for _, b := range bets {
		n := domain.Notification{
			ID:     uuid.New().String(),
			UserID: b.UserID,
			RefID:  b.ID,
		}
		switch b.Status {
		case domain.BetStatusWon:
			n.Kind = domain.NotifyBetSettled
			n.Title = "Bet won"
			n.Body = fmt.Sprintf("Your %.2f stake paid out %.2f.", b.Stake, b.Payout)
		case domain.BetStatusLost:
			n.Kind = domain.NotifyBetSettled
			n.Title = "Bet lost"
			n.Body = fmt.Sprintf("Your %.2f stake did not come in.", b.Stake)
		case domain.BetStatusRefunded:
			n.Kind = domain.NotifyBetRefunded
			n.Title = "Bet refunded"
			n.Body = fmt.Sprintf("Market voided; your %.2f stake was returned.", b.Stake)
		default:
			continue
		}

		if err := m.notes.Upsert(ctx, n); err != nil {
			m.logger.ErrorContext(ctx, "bet notification upsert failed",
				slog.String("bet_id", b.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
