package board

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"tenderwatch/sync-service/internal/metrics"
	"tenderwatch/sync-service/internal/model"
)

// identityPattern finds a notice number in a card title. It is a heuristic:
// a title that happens to contain a matching token for an unrelated reason
// also counts as "already on the board".
var identityPattern = regexp.MustCompile(`POST/[A-Z0-9/.\-]+/\d{4}`)

// Notifier is told about every card the Reconciler creates.
type Notifier interface {
	CardCreated(ctx context.Context, t model.Tender, cardID string) error
}

// Report counts the outcome of one reconciliation.
type Report struct {
	Existing int
	Fresh    int
	Created  int
	Failed   int
}

// IdentityFromName returns the upper-cased notice number found in a card
// name, or "" when the name holds none.
func IdentityFromName(name string) string {
	return identityPattern.FindString(strings.ToUpper(name))
}

// Identities collects the notice numbers present in the given card names.
func Identities(names []string) map[string]struct{} {
	ids := make(map[string]struct{}, len(names))
	for _, name := range names {
		if id := IdentityFromName(name); id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids
}

// Diff returns the tenders whose upper-cased number is not yet on the board.
func Diff(tenders []model.Tender, ids map[string]struct{}) []model.Tender {
	fresh := make([]model.Tender, 0, len(tenders))
	for _, t := range tenders {
		if _, ok := ids[strings.ToUpper(t.Number)]; ok {
			continue
		}
		fresh = append(fresh, t)
	}
	return fresh
}

// Reconciler creates one card per tender not yet represented on the board.
type Reconciler struct {
	api      API
	lists    map[model.Region]string
	delay    time.Duration
	notifier Notifier
	log      *slog.Logger
}

// NewReconciler constructs a Reconciler. lists maps each region to its board
// list; delay is the pause between successive card creations.
func NewReconciler(api API, lists map[model.Region]string, delay time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		api:   api,
		lists: lists,
		delay: delay,
		log:   logger.With("component", "board"),
	}
}

// WithNotifier sets the receiver of card-created notifications.
func (r *Reconciler) WithNotifier(n Notifier) *Reconciler {
	r.notifier = n
	return r
}

// ExistingIdentities rebuilds the set of notice numbers already on the board.
func (r *Reconciler) ExistingIdentities(ctx context.Context) (map[string]struct{}, error) {
	names, err := r.api.CardNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch board cards: %w", err)
	}
	return Identities(names), nil
}

// Sync creates cards for the tenders missing from the board. Creations run
// one at a time with a pause in between; a failed creation is logged and the
// loop moves on. Only failing to read the board state, or ctx ending, is
// returned as an error.
func (r *Reconciler) Sync(ctx context.Context, tenders []model.Tender) (Report, error) {
	ids, err := r.ExistingIdentities(ctx)
	if err != nil {
		return Report{}, err
	}

	fresh := Diff(tenders, ids)
	report := Report{Existing: len(ids), Fresh: len(fresh)}
	r.log.Info("board reconciled", "existing", report.Existing, "fresh", report.Fresh)

	created := make(map[string]struct{}, len(fresh))
	for i, t := range fresh {
		number := strings.ToUpper(t.Number)
		if _, dup := created[number]; dup {
			r.log.Info("skipping repeated notice number", "number", t.Number)
			continue
		}
		if i > 0 {
			if err := sleep(ctx, r.delay); err != nil {
				return report, err
			}
		}

		cardID, err := r.CreateCard(ctx, t)
		metrics.ObserveCard(string(t.Region), err == nil)
		if err != nil {
			report.Failed++
			r.log.Error("card creation failed", "number", t.Number, "err", err)
			continue
		}
		created[number] = struct{}{}
		report.Created++
		r.log.Info("card created", "number", t.Number, "card", cardID, "region", t.Region)
	}

	return report, nil
}

// CreateCard creates the card for t in its region's list and attaches the
// notice link. A failed attachment is logged but does not fail the card.
func (r *Reconciler) CreateCard(ctx context.Context, t model.Tender) (string, error) {
	listID := r.lists[t.Region]
	if listID == "" {
		return "", fmt.Errorf("no board list configured for region %q", t.Region)
	}

	card, err := r.api.CreateCard(ctx, listID, CardTitle(t), CardDescription(t))
	if err != nil {
		return "", err
	}

	if card.ID != "" && t.URL != "" {
		if err := r.api.AttachURL(ctx, card.ID, t.URL); err != nil {
			r.log.Warn("attaching link failed", "number", t.Number, "card", card.ID, "err", err)
		}
	}

	if r.notifier != nil {
		if err := r.notifier.CardCreated(ctx, t, card.ID); err != nil {
			r.log.Warn("card notification failed", "number", t.Number, "err", err)
		}
	}

	return card.ID, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
