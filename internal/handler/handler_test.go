package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/foodshare/internal/logger"
	"github.com/iliyamo/foodshare/internal/middleware"
	"github.com/iliyamo/foodshare/internal/model"
	"github.com/iliyamo/foodshare/internal/queue"
	"github.com/iliyamo/foodshare/internal/repository"
	"github.com/iliyamo/foodshare/internal/service"
)

func mockReservations(t *testing.T) (*ReservationHandler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	svc := service.NewReservationService(db, repository.NewListingRepo(db), repository.NewBusinessRepo(db),
		repository.NewOrganizationRepo(db), repository.NewReservationRepo(db), queue.NopPublisher{}, logger.Discard())
	return NewReservationHandler(svc, logger.Discard()), mock
}

func reserveCtx(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/v1/reservations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.CtxUserID, uint64(7))
	c.Set(middleware.CtxRole, model.RoleOrganization)
	return c, rec
}

func TestCreateReservationStoreFailureIs500(t *testing.T) {
	h, mock := mockReservations(t)
	e := echo.New()
	e.Validator = NewValidator()
	mock.ExpectQuery("FROM organizations WHERE owner_user_id").WillReturnError(errors.New("connection reset"))

	c, rec := reserveCtx(e, `{"listing_id":1,"collect_at":"2030-01-01T10:00:00Z"}`)
	if err := h.Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "internal error" || body.Kind != "" {
		t.Fatalf("body = %+v", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCreateReservationRollsBack(t *testing.T) {
	h, mock := mockReservations(t)
	e := echo.New()
	e.Validator = NewValidator()
	now := time.Now()
	org := sqlmock.NewRows([]string{"id", "owner_user_id", "name", "description", "address", "postal_code", "locality",
		"canton", "latitude", "longitude", "website", "registration_id", "approved", "created_at", "updated_at"}).
		AddRow(3, 7, "Food bank", nil, "Rue 1", "1000", "Lausanne", "VD", nil, nil, nil, "CHE-1", true, now, now)
	mock.ExpectQuery("FROM organizations WHERE owner_user_id").WithArgs(7).WillReturnRows(org)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM listings").WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	c, rec := reserveCtx(e, `{"listing_id":1,"collect_at":"2030-01-01T10:00:00Z"}`)
	if err := h.Create(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteErrorKinds(t *testing.T) {
	e := echo.New()
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{service.Validation("bad"), http.StatusUnprocessableEntity, "validation"},
		{service.Forbidden("no"), http.StatusForbidden, "authorization"},
		{service.Ineligible("later"), http.StatusForbidden, "eligibility"},
		{service.NotFound("gone"), http.StatusNotFound, "not_found"},
		{service.Conflict("taken"), http.StatusUnprocessableEntity, "conflict"},
		{service.Expired("late"), http.StatusUnprocessableEntity, "expired"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := writeError(c, logger.Discard(), tc.err); err != nil {
			t.Fatal(err)
		}
		var body errorBody
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != tc.status || body.Kind != tc.kind {
			t.Errorf("%v: %d %+v", tc.err, rec.Code, body)
		}
	}
}

func TestBindValidation(t *testing.T) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"email":"nope","password":"short","first_name":"A"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	var r registerReq
	ok, err := bind(e.NewContext(req, rec), &r)
	if ok || err != nil {
		t.Fatalf("bind = %v %v", ok, err)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	fields := map[string]bool{}
	for _, d := range body.Details {
		fields[d.Field] = true
	}
	if rec.Code != http.StatusUnprocessableEntity || !fields["email"] || !fields["password"] || !fields["last_name"] {
		t.Fatalf("%d %+v", rec.Code, body)
	}
}

func TestReadyReportsDatabase(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	e := echo.New()
	rec := httptest.NewRecorder()
	if err := Ready(db, nil)(e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "down") {
		t.Fatalf("%d %s", rec.Code, rec.Body)
	}
}
