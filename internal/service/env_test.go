package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/foodshare/internal/database"
	"github.com/iliyamo/foodshare/internal/logger"
	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/queue"
	"github.com/iliyamo/foodshare/internal/repository"
	"github.com/iliyamo/foodshare/internal/storage"
)

// recorder is an EventPublisher that keeps what it was given.
type recorder struct {
	mu     sync.Mutex
	events []queue.Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

// memBlobs is an in-memory BlobStore.
type memBlobs struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemBlobs() *memBlobs { return &memBlobs{files: map[string][]byte{}} }

func (m *memBlobs) Put(_ context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[key] = b
	return nil
}

func (m *memBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.files, key)
	return nil
}

func (m *memBlobs) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type env struct {
	db           *sql.DB
	users        *repository.UserRepo
	businesses   *repository.BusinessRepo
	orgs         *repository.OrganizationRepo
	listingsRepo *repository.ListingRepo
	resvRepo     *repository.ReservationRepo
	events       *recorder
	blobs        *memBlobs

	listings     *ListingService
	reservations *ReservationService
	documents    *DocumentService
	accounts     *AccountService

	admin Actor
	now   time.Time
	seq   int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := database.NewTestDB(t)
	log := logger.Discard()
	e := &env{
		db:           db,
		users:        repository.NewUserRepo(db),
		businesses:   repository.NewBusinessRepo(db),
		orgs:         repository.NewOrganizationRepo(db),
		listingsRepo: repository.NewListingRepo(db),
		resvRepo:     repository.NewReservationRepo(db),
		events:       &recorder{},
		blobs:        newMemBlobs(),
		now:          time.Now().UTC().Truncate(time.Second),
	}
	docs := repository.NewDocumentRepo(db)
	e.reservations = NewReservationService(db, e.listingsRepo, e.businesses, e.orgs, e.resvRepo, e.events, log)
	e.listings = NewListingService(db, e.listingsRepo, e.businesses, e.resvRepo, e.reservations, log)
	e.documents = NewDocumentService(db, docs, e.businesses, e.orgs, e.blobs, e.events, log, 0)
	e.accounts = NewAccountService(db, e.users, e.businesses, e.orgs, e.listingsRepo, e.resvRepo, e.documents, log)
	e.admin = e.account(t, "admin@example.com", model.RoleAdmin)
	return e
}

func (e *env) account(t *testing.T, email, role string) Actor {
	t.Helper()
	id, err := e.users.Create(context.Background(), repository.NewUser{
		Email: email, Password: "password1", FirstName: "Test", LastName: "User", Role: role,
	}, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("create account %s: %v", email, err)
	}
	return Actor{UserID: id, Role: role}
}

func (e *env) partnerInput(prefix string) PartnerInput {
	e.seq++
	lat, lng := 46.5197, 6.6323
	return PartnerInput{
		Name: fmt.Sprintf("%s %d", prefix, e.seq), Address: "Rue Centrale 1", PostalCode: "1003",
		Locality: "Lausanne", Canton: "VD", Latitude: &lat, Longitude: &lng,
		RegistrationID: fmt.Sprintf("CHE-%s-%03d", prefix, e.seq),
	}
}

// business returns a business owner actor with its business.
func (e *env) business(t *testing.T, email string, approved bool) (Actor, model.Business) {
	t.Helper()
	ctx := context.Background()
	a := e.account(t, email, model.RoleNone)
	b, err := e.accounts.CreateBusiness(ctx, a, e.partnerInput("B"))
	if err != nil {
		t.Fatalf("create business: %v", err)
	}
	a.Role = model.RoleBusiness
	if approved {
		if b, err = e.accounts.SetBusinessApproval(ctx, e.admin, b.ID, true); err != nil {
			t.Fatalf("approve business: %v", err)
		}
	}
	return a, b
}

// organization returns an organization owner actor with its organization.
func (e *env) organization(t *testing.T, email string, approved bool) (Actor, model.Organization) {
	t.Helper()
	ctx := context.Background()
	a := e.account(t, email, model.RoleNone)
	o, err := e.accounts.CreateOrganization(ctx, a, e.partnerInput("O"))
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	a.Role = model.RoleOrganization
	if approved {
		if o, err = e.accounts.SetOrganizationApproval(ctx, e.admin, o.ID, true); err != nil {
			t.Fatalf("approve organization: %v", err)
		}
	}
	return a, o
}

func (e *env) listing(t *testing.T, owner Actor, from, until time.Time) model.Listing {
	t.Helper()
	l, err := e.listings.Create(context.Background(), owner, ListingInput{
		Title: "Bread", Quantity: 5, Unit: "kg", AvailableFrom: from, AvailableUntil: until,
	})
	if err != nil {
		t.Fatalf("create listing: %v", err)
	}
	return l
}

func (e *env) listingStatus(t *testing.T, id uint64) string {
	t.Helper()
	l, err := e.listingsRepo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get listing %d: %v", id, err)
	}
	return l.Status
}

// market is an approved business with one open listing and an approved
// organization ready to reserve it.
type market struct {
	biz     Actor
	org     Actor
	orgID   uint64
	listing model.Listing
}

func (e *env) market(t *testing.T) market {
	t.Helper()
	biz, _ := e.business(t, fmt.Sprintf("shop%d@example.com", e.seq), true)
	org, o := e.organization(t, fmt.Sprintf("food%d@example.com", e.seq), true)
	l := e.listing(t, biz, e.now, e.now.Add(24*time.Hour))
	return market{biz: biz, org: org, orgID: o.ID, listing: l}
}

func (e *env) reserve(t *testing.T, m market) model.Reservation {
	t.Helper()
	r, _, err := e.reservations.Create(context.Background(), m.org, CreateReservation{
		ListingID: m.listing.ID, CollectAt: e.now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return r
}

func wantKind(t *testing.T, err error, k Kind) {
	t.Helper()
	if !Is(err, k) {
		t.Fatalf("want %s error, got %v", k, err)
	}
}

var errBoom = errors.New("boom")
