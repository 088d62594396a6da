package memory

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"loyalty-points-system/internal/core/domain"
	"loyalty-points-system/internal/core/ports"
)

type usageKey struct {
	promotionID int64
	accountID   int64
}

type state struct {
	accounts     map[int64]domain.Account
	promotions   map[int64]domain.Promotion
	usages       map[usageKey]int64
	events       map[int64]domain.Event
	transactions map[int64]domain.Transaction
	lastTxID     int64
	lastAcctID   int64
}

// clone copies the maps. Values are replaced, never mutated in place, so sharing their
// slices between snapshots is safe.
func (s *state) clone() *state {
	return &state{
		accounts:     maps.Clone(s.accounts),
		promotions:   maps.Clone(s.promotions),
		usages:       maps.Clone(s.usages),
		events:       maps.Clone(s.events),
		transactions: maps.Clone(s.transactions),
		lastTxID:     s.lastTxID,
		lastAcctID:   s.lastAcctID,
	}
}

// Store implements ports.Store in memory. Units of work are serialized by one mutex and run
// against a snapshot that only replaces the live state when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: &state{
		accounts:     make(map[int64]domain.Account),
		promotions:   make(map[int64]domain.Promotion),
		usages:       make(map[usageKey]int64),
		events:       make(map[int64]domain.Event),
		transactions: make(map[int64]domain.Transaction),
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// PutAccount inserts or replaces an account, assigning an ID when it has none.
func (s *Store) PutAccount(a domain.Account) domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.st.lastAcctID++
		a.ID = s.st.lastAcctID
	} else if a.ID > s.st.lastAcctID {
		s.st.lastAcctID = a.ID
	}
	s.st.accounts[a.ID] = a
	return a
}

func (s *Store) PutPromotion(p domain.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.promotions[p.ID] = p
}

func (s *Store) PutEvent(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.events[e.ID] = e
}

func (s *Store) Account(id int64) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.accounts[id]
	return a, ok
}

func (s *Store) Event(id int64) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.events[id]
	return e, ok
}

func (s *Store) Transaction(id int64) (domain.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.transactions[id]
	return t, ok
}

// TransactionsFor returns every transaction owned by accountID in creation order.
func (s *Store) TransactionsFor(accountID int64) []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for id := int64(1); id <= s.st.lastTxID; id++ {
		if t, ok := s.st.transactions[id]; ok && t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out
}

type tx struct {
	st *state
}

func (t *tx) AccountByID(_ context.Context, id int64) (domain.Account, error) {
	a, ok := t.st.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return a, nil
}

func (t *tx) AccountByUTORid(_ context.Context, utorid string) (domain.Account, error) {
	for _, a := range t.st.accounts {
		if strings.EqualFold(a.UTORid, utorid) {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrAccountNotFound
}

func (t *tx) AddPoints(_ context.Context, accountID, delta int64) (int64, error) {
	a, ok := t.st.accounts[accountID]
	if !ok {
		return 0, domain.ErrAccountNotFound
	}
	if a.Points+delta < 0 {
		return a.Points, domain.ErrInsufficientPoints
	}
	a.Points += delta
	t.st.accounts[accountID] = a
	return a.Points, nil
}

func (t *tx) PromotionsByIDs(_ context.Context, ids []int64) ([]domain.Promotion, error) {
	var out []domain.Promotion
	for _, id := range ids {
		if p, ok := t.st.promotions[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) PromotionsByType(_ context.Context, promoType domain.PromotionType) ([]domain.Promotion, error) {
	var out []domain.Promotion
	for _, p := range t.st.promotions {
		if p.Type == promoType {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) PromotionUsed(_ context.Context, promotionID, accountID int64) (bool, error) {
	_, used := t.st.usages[usageKey{promotionID, accountID}]
	return used, nil
}

func (t *tx) RecordPromotionUsage(_ context.Context, promotionID, accountID, transactionID int64) error {
	key := usageKey{promotionID, accountID}
	if existing, ok := t.st.usages[key]; ok {
		if existing == transactionID {
			return nil
		}
		return domain.ErrPromotionAlreadyUsed
	}
	t.st.usages[key] = transactionID
	return nil
}

func (t *tx) EventByID(_ context.Context, id int64) (domain.Event, error) {
	e, ok := t.st.events[id]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return e, nil
}

func (t *tx) ApplyEventAward(_ context.Context, eventID, total int64) error {
	e, ok := t.st.events[eventID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if total > e.PointsRemain {
		return domain.ErrInsufficientPool
	}
	e.PointsRemain -= total
	e.PointsAwarded += total
	t.st.events[eventID] = e
	return nil
}

func (t *tx) CreateTransaction(_ context.Context, record *domain.Transaction) error {
	t.st.lastTxID++
	record.ID = t.st.lastTxID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	t.st.transactions[record.ID] = *record
	return nil
}

func (t *tx) TransactionByID(_ context.Context, id int64) (domain.Transaction, error) {
	record, ok := t.st.transactions[id]
	if !ok {
		return domain.Transaction{}, domain.ErrTransactionNotFound
	}
	return record, nil
}

func (t *tx) SetTransactionSuspicious(_ context.Context, id int64, suspicious bool) error {
	record, ok := t.st.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	record.Suspicious = suspicious
	t.st.transactions[id] = record
	return nil
}

func (t *tx) MarkRedemptionProcessed(_ context.Context, id, processedBy int64, at time.Time) error {
	record, ok := t.st.transactions[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	details, ok := record.Details.(domain.RedemptionDetails)
	if !ok {
		return domain.ErrWrongTransactionType
	}
	if details.Processed {
		return domain.ErrAlreadyProcessed
	}
	record.Details = domain.RedemptionDetails{Processed: true, ProcessedBy: &processedBy, ProcessedAt: &at}
	t.st.transactions[id] = record
	return nil
}
