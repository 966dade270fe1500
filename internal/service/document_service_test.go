package service

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/foodshare/internal/model"
)

var (
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
)

func (e *env) submit(t *testing.T, a Actor, kind string, body []byte) model.Document {
	t.Helper()
	d, err := e.documents.Submit(context.Background(), a, Upload{Filename: "proof.pdf", Body: bytes.NewReader(body), Kind: kind})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return d
}

func TestAcceptedDocumentApprovesOrganization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	biz, _ := e.business(t, "shop@example.com", true)
	l := e.listing(t, biz, e.now, e.now.Add(24*time.Hour))
	org, o := e.organization(t, "food@example.com", false)
	in := CreateReservation{ListingID: l.ID, CollectAt: e.now.Add(time.Hour)}

	_, _, err := e.reservations.Create(ctx, org, in)
	wantKind(t, err, KindEligibility)

	d := e.submit(t, org, "organization", pdfBytes)
	if d.Status != model.DocumentPending || d.Kind != model.DocumentOrganization {
		t.Fatalf("submitted %+v", d)
	}
	reviewed, err := e.documents.Review(ctx, e.admin, d.ID, model.DocumentAccepted, ptr("looks good"))
	if err != nil {
		t.Fatal(err)
	}
	if reviewed.Status != model.DocumentAccepted || reviewed.Comment == nil {
		t.Fatalf("reviewed %+v", reviewed)
	}
	got, err := e.orgs.GetByID(ctx, o.ID)
	if err != nil || !got.Approved {
		t.Fatalf("organization not approved: %+v %v", got, err)
	}

	if _, _, err := e.reservations.Create(ctx, org, in); err != nil {
		t.Fatalf("reservation after approval: %v", err)
	}
}

func TestAcceptedBusinessDocumentApprovesBusiness(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	biz, b := e.business(t, "shop@example.com", false)
	d := e.submit(t, biz, model.DocumentBusiness, pngBytes)
	if _, err := e.documents.Review(ctx, e.admin, d.ID, model.DocumentAccepted, nil); err != nil {
		t.Fatal(err)
	}
	got, _ := e.businesses.GetByID(ctx, b.ID)
	if !got.Approved {
		t.Fatal("business not approved")
	}

	// Rejecting later does not take the approval back.
	if _, err := e.documents.Review(ctx, e.admin, d.ID, model.DocumentRejected, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = e.businesses.GetByID(ctx, b.ID)
	if !got.Approved {
		t.Fatal("rejection revoked approval")
	}
}

func TestAcceptedDocumentWithoutEntity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "solo@example.com", model.RoleNone)
	for _, kind := range []string{model.DocumentBusiness, model.DocumentIdentity} {
		d := e.submit(t, a, kind, pdfBytes)
		if _, err := e.documents.Review(ctx, e.admin, d.ID, model.DocumentAccepted, nil); err != nil {
			t.Fatalf("%s review: %v", kind, err)
		}
	}
}

func TestSubmitValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "user@example.com", model.RoleNone)
	e.documents.MaxBytes = 64

	cases := map[string]Upload{
		"bad kind":   {Kind: "PASSPORT", Body: bytes.NewReader(pdfBytes)},
		"text file":  {Kind: model.DocumentOther, Body: strings.NewReader("just some text")},
		"html file":  {Kind: model.DocumentOther, Body: strings.NewReader("<html><body>hi</body></html>")},
		"empty":      {Kind: model.DocumentOther, Body: bytes.NewReader(nil)},
		"no body":    {Kind: model.DocumentOther},
		"too large":  {Kind: model.DocumentOther, Body: bytes.NewReader(append(pdfBytes, bytes.Repeat([]byte("x"), 64)...))},
		"long notes": {Kind: model.DocumentOther, Body: bytes.NewReader(pdfBytes), Comment: ptr(strings.Repeat("a", 501))},
	}
	for name, up := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.documents.Submit(ctx, a, up)
			wantKind(t, err, KindValidation)
		})
	}
	if e.blobs.len() != 0 {
		t.Fatalf("rejected uploads left %d blobs", e.blobs.len())
	}
}

func TestSubmitStoresUnderGeneratedKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "user@example.com", model.RoleNone)

	d, err := e.documents.Submit(ctx, a, Upload{
		Filename: "../../etc/passwd.png", Body: bytes.NewReader(pngBytes), Kind: model.DocumentIdentity,
	})
	if err != nil {
		t.Fatal(err)
	}
	prefix := strconv.FormatUint(a.UserID, 10) + "/"
	if !strings.HasPrefix(d.StorageKey, prefix) || !strings.HasSuffix(d.StorageKey, ".png") || strings.Contains(d.StorageKey, "passwd") {
		t.Fatalf("storage key %q", d.StorageKey)
	}
	if d.OriginalName != "passwd.png" || d.ContentType != "image/png" || d.SizeBytes != int64(len(pngBytes)) {
		t.Fatalf("metadata %+v", d)
	}

	_, rc, err := e.documents.Download(ctx, a, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	if !bytes.Equal(body, pngBytes) {
		t.Fatal("downloaded bytes differ")
	}
}

func TestSubmitRemovesBlobWhenInsertFails(t *testing.T) {
	e := newEnv(t)
	a := e.account(t, "user@example.com", model.RoleNone)
	e.db.Close()

	_, err := e.documents.Submit(context.Background(), a, Upload{Body: bytes.NewReader(pdfBytes), Kind: model.DocumentOther})
	if err == nil {
		t.Fatal("submit should fail on a closed database")
	}
	if e.blobs.len() != 0 {
		t.Fatalf("blob left behind")
	}
}

func TestDocumentDeleteRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	owner := e.account(t, "owner@example.com", model.RoleNone)
	stranger := e.account(t, "stranger@example.com", model.RoleNone)

	pending := e.submit(t, owner, model.DocumentOther, pdfBytes)
	wantKind(t, e.documents.Delete(ctx, stranger, pending.ID), KindAuthorization)
	if err := e.documents.Delete(ctx, owner, pending.ID); err != nil {
		t.Fatal(err)
	}
	wantKind(t, e.documents.Delete(ctx, owner, pending.ID), KindNotFound)

	rejected := e.submit(t, owner, model.DocumentOther, pdfBytes)
	if _, err := e.documents.Review(ctx, e.admin, rejected.ID, model.DocumentRejected, nil); err != nil {
		t.Fatal(err)
	}
	if err := e.documents.Delete(ctx, owner, rejected.ID); err != nil {
		t.Fatalf("owner delete of rejected: %v", err)
	}

	accepted := e.submit(t, owner, model.DocumentOther, pdfBytes)
	if _, err := e.documents.Review(ctx, e.admin, accepted.ID, model.DocumentAccepted, nil); err != nil {
		t.Fatal(err)
	}
	wantKind(t, e.documents.Delete(ctx, owner, accepted.ID), KindConflict)
	if err := e.documents.Delete(ctx, e.admin, accepted.ID); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if e.blobs.len() != 0 {
		t.Fatalf("%d blobs left", e.blobs.len())
	}
}

func TestDocumentStatusAndAdminList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "user@example.com", model.RoleNone)

	st, err := e.documents.Status(ctx, a)
	if err != nil || st.HasPending || st.HasAccepted || len(st.Documents) != 0 {
		t.Fatalf("empty status = %+v %v", st, err)
	}
	d := e.submit(t, a, model.DocumentIdentity, pdfBytes)
	e.submit(t, a, model.DocumentOther, pdfBytes)
	if _, err := e.documents.Review(ctx, e.admin, d.ID, model.DocumentAccepted, nil); err != nil {
		t.Fatal(err)
	}
	st, err = e.documents.Status(ctx, a)
	if err != nil || !st.HasPending || !st.HasAccepted || len(st.Documents) != 2 {
		t.Fatalf("status = %+v %v", st, err)
	}

	_, err = e.documents.List(ctx, a, DocumentQuery{})
	wantKind(t, err, KindAuthorization)
	page, err := e.documents.List(ctx, e.admin, DocumentQuery{Status: model.DocumentPending})
	if err != nil || page.Total != 1 {
		t.Fatalf("pending list = %+v %v", page, err)
	}
	_, err = e.documents.List(ctx, e.admin, DocumentQuery{Kind: "PASSPORT"})
	wantKind(t, err, KindValidation)
}

func TestReviewRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.account(t, "user@example.com", model.RoleNone)
	d := e.submit(t, a, model.DocumentOther, pdfBytes)

	_, err := e.documents.Review(ctx, a, d.ID, model.DocumentAccepted, nil)
	wantKind(t, err, KindAuthorization)
	_, err = e.documents.Review(ctx, e.admin, d.ID, model.DocumentPending, nil)
	wantKind(t, err, KindValidation)
	_, err = e.documents.Review(ctx, e.admin, 404, model.DocumentAccepted, nil)
	wantKind(t, err, KindNotFound)

	other := e.account(t, "other@example.com", model.RoleNone)
	_, err = e.documents.Get(ctx, other, d.ID)
	wantKind(t, err, KindAuthorization)
	if _, err := e.documents.Get(ctx, e.admin, d.ID); err != nil {
		t.Fatalf("admin get: %v", err)
	}
}
