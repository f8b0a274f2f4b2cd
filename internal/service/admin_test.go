package service

import (
	"context"
	"testing"

	"github.com/sakif/social-feed/internal/apperror"
	"github.com/sakif/social-feed/internal/model"
)

func TestSetAdmin(t *testing.T) {
	db := newTestStore(t)
	svc := NewAdminService(db, db, testLogger())
	createUser(t, db, "alice")
	ctx := context.Background()

	user, err := svc.SetAdmin(ctx, "alice", true)
	if err != nil {
		t.Fatalf("SetAdmin() error = %v", err)
	}
	if !user.IsAdmin {
		t.Error("SetAdmin(true) should report the new role")
	}

	stored, _ := db.GetUserByUsername(ctx, "alice")
	if !stored.IsAdmin {
		t.Error("admin flag not persisted")
	}

	if _, err := svc.SetAdmin(ctx, "alice", false); err != nil {
		t.Fatalf("SetAdmin(false) error = %v", err)
	}
	stored, _ = db.GetUserByUsername(ctx, "alice")
	if stored.IsAdmin {
		t.Error("admin flag not revoked")
	}

	_, err = svc.SetAdmin(ctx, "nobody", true)
	wantAppError(t, err, apperror.ErrNotFound, "User not found")
}

func TestFindRetweetIssues(t *testing.T) {
	shadow := func(id, user, original string) model.Tweet {
		return model.Tweet{ID: id, User: model.UserRef{ID: user}, IsRetweet: true, OriginalTweetID: original}
	}

	// Newest first, as ListTweets returns them.
	tweets := []model.Tweet{
		shadow("s4", "carol", "gone"),
		shadow("s3", "bob", "t1"),
		shadow("s2", "bob", "t1"),
		shadow("s1", "alice", "t2"),
		{ID: "t2", Retweets: []string{"dave"}},
		{ID: "t1", Retweets: []string{"bob"}},
	}

	report := findRetweetIssues(tweets)

	if len(report.Duplicates) != 1 || report.Duplicates[0].ShadowID != "s3" {
		t.Errorf("Duplicates = %+v, want the newer s3", report.Duplicates)
	}
	if len(report.MissingMembership) != 1 || report.MissingMembership[0] != (RetweetIssue{OriginalID: "t2", UserID: "alice", ShadowID: "s1"}) {
		t.Errorf("MissingMembership = %+v", report.MissingMembership)
	}
	if len(report.DanglingMembership) != 1 || report.DanglingMembership[0] != (RetweetIssue{OriginalID: "t2", UserID: "dave"}) {
		t.Errorf("DanglingMembership = %+v", report.DanglingMembership)
	}
	if len(report.Orphans) != 1 || report.Orphans[0].ShadowID != "s4" {
		t.Errorf("Orphans = %+v", report.Orphans)
	}
	if report.Clean() {
		t.Error("Clean() = true for a report with issues")
	}
}

func TestReconcileRetweets_Fix(t *testing.T) {
	db := newTestStore(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")
	ctx := context.Background()

	tweets := NewTweetService(db, db, nil, testLogger())
	admin := NewAdminService(db, db, testLogger())

	original, _ := tweets.Create(ctx, alice.ID, "popular", "", "")

	// A shadow whose membership write never happened.
	if err := db.CreateTweet(ctx, &model.Tweet{
		User: bob.Ref(), Content: "popular", OriginalTweetID: original.ID, IsRetweet: true,
	}); err != nil {
		t.Fatalf("CreateTweet(shadow) error = %v", err)
	}
	// A membership entry with no shadow.
	if err := db.AddRetweeter(ctx, original.ID, carol.ID); err != nil {
		t.Fatalf("AddRetweeter() error = %v", err)
	}

	report, err := admin.ReconcileRetweets(ctx, false)
	if err != nil {
		t.Fatalf("ReconcileRetweets(false) error = %v", err)
	}
	if len(report.MissingMembership) != 1 || len(report.DanglingMembership) != 1 || report.Fixed {
		t.Fatalf("dry run report = %+v", report)
	}

	report, err = admin.ReconcileRetweets(ctx, true)
	if err != nil {
		t.Fatalf("ReconcileRetweets(true) error = %v", err)
	}
	if !report.Fixed {
		t.Error("Fixed = false after a fix run")
	}

	got, _ := db.GetTweet(ctx, original.ID)
	if len(got.Retweets) != 1 || got.Retweets[0] != bob.ID {
		t.Errorf("Retweets = %v, want [bob]", got.Retweets)
	}

	report, _ = admin.ReconcileRetweets(ctx, false)
	if !report.Clean() {
		t.Errorf("report after fix = %+v, want clean", report)
	}
}
