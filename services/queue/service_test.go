package queue_test

import (
	"errors"
	"testing"

	"showplan/models"
	"showplan/services/queue"
)

func newService(t *testing.T) *queue.Service {
	t.Helper()
	svc, err := queue.NewService(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func addShow(t *testing.T, svc *queue.Service, userID, contentID, title string) models.QueueEntry {
	t.Helper()
	entry, err := svc.AddOrUpdate(userID, models.QueueUpsert{
		ContentID:   contentID,
		Title:       title,
		ContentType: models.ContentTypeShow,
	})
	if err != nil {
		t.Fatalf("add %q returned error: %v", title, err)
	}
	return entry
}

func TestAddAndListKeepsOrder(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-1", "show-2", "Second Show")
	addShow(t, svc, "user-1", "movie-1", "A Movie")

	list, err := svc.List("user-1")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(list))
	}
	for i, entry := range list {
		if entry.Position != i {
			t.Errorf("entry %d has position %d", i, entry.Position)
		}
	}
	if list[0].ContentID != "show-1" || list[2].ContentID != "movie-1" {
		t.Errorf("unexpected order: %q, %q, %q", list[0].ContentID, list[1].ContentID, list[2].ContentID)
	}
}

func TestAddDefaultsFilterToAll(t *testing.T) {
	svc := newService(t)

	entry := addShow(t, svc, "user-1", "show-1", "First Show")
	if entry.Filter.Mode != models.FilterAll {
		t.Errorf("expected default filter mode all, got %q", entry.Filter.Mode)
	}
	if entry.AddedAt.IsZero() {
		t.Error("expected AddedAt to be stamped")
	}
}

func TestAddValidation(t *testing.T) {
	svc := newService(t)

	_, err := svc.AddOrUpdate("", models.QueueUpsert{ContentID: "x", Title: "X", ContentType: models.ContentTypeShow})
	if !errors.Is(err, queue.ErrUserIDRequired) {
		t.Errorf("expected ErrUserIDRequired, got %v", err)
	}

	_, err = svc.AddOrUpdate("user-1", models.QueueUpsert{Title: "X", ContentType: models.ContentTypeShow})
	if !errors.Is(err, queue.ErrContentIDRequired) {
		t.Errorf("expected ErrContentIDRequired, got %v", err)
	}

	_, err = svc.AddOrUpdate("user-1", models.QueueUpsert{ContentID: "x", Title: "X", ContentType: "album"})
	if !errors.Is(err, queue.ErrInvalidContentType) {
		t.Errorf("expected ErrInvalidContentType, got %v", err)
	}

	_, err = svc.AddOrUpdate("user-1", models.QueueUpsert{ContentID: "x", ContentType: models.ContentTypeShow})
	if !errors.Is(err, queue.ErrTitleRequired) {
		t.Errorf("expected ErrTitleRequired, got %v", err)
	}
}

func TestAddOrUpdate_UpdatesInPlace(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-1", "show-2", "Second Show")

	tmdbID := int64(42)
	updated, err := svc.AddOrUpdate("user-1", models.QueueUpsert{
		ContentID:   "show-1",
		Title:       "First Show (Remastered)",
		ContentType: models.ContentTypeShow,
		TMDBID:      &tmdbID,
	})
	if err != nil {
		t.Fatalf("update returned error: %v", err)
	}

	if updated.Position != 0 {
		t.Errorf("expected position to be kept, got %d", updated.Position)
	}
	if updated.Title != "First Show (Remastered)" {
		t.Errorf("expected updated title, got %q", updated.Title)
	}
	if updated.TMDBID == nil || *updated.TMDBID != 42 {
		t.Errorf("expected tmdb id 42, got %v", updated.TMDBID)
	}

	list, _ := svc.List("user-1")
	if len(list) != 2 {
		t.Errorf("expected update not to grow the queue, got %d entries", len(list))
	}
}

func TestRemoveClosesPositionGap(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-1", "show-2", "Second Show")
	addShow(t, svc, "user-1", "show-3", "Third Show")

	removed, err := svc.Remove("user-1", "show-2")
	if err != nil {
		t.Fatalf("remove returned error: %v", err)
	}
	if !removed {
		t.Fatal("expected entry to be removed")
	}

	list, _ := svc.List("user-1")
	if len(list) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(list))
	}
	if list[1].ContentID != "show-3" || list[1].Position != 1 {
		t.Errorf("expected show-3 to move to position 1, got %q at %d", list[1].ContentID, list[1].Position)
	}
}

func TestRemoveMissing(t *testing.T) {
	svc := newService(t)

	removed, err := svc.Remove("user-1", "ghost")
	if err != nil {
		t.Fatalf("remove returned error: %v", err)
	}
	if removed {
		t.Error("expected remove to report missing entry")
	}
}

func TestReorder(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-1", "show-2", "Second Show")
	addShow(t, svc, "user-1", "show-3", "Third Show")

	reordered, err := svc.Reorder("user-1", []string{"show-3", "show-1", "show-2"})
	if err != nil {
		t.Fatalf("reorder returned error: %v", err)
	}
	if reordered[0].ContentID != "show-3" || reordered[0].Position != 0 {
		t.Errorf("unexpected first entry: %+v", reordered[0])
	}

	list, _ := svc.List("user-1")
	if list[0].ContentID != "show-3" || list[2].ContentID != "show-2" {
		t.Errorf("unexpected order after reorder: %q ... %q", list[0].ContentID, list[2].ContentID)
	}
}

func TestReorderMismatch(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-1", "show-2", "Second Show")

	cases := [][]string{
		{"show-1"},                       // too short
		{"show-1", "show-2", "show-3"},   // too long
		{"show-1", "ghost"},              // unknown id
		{"show-1", "show-1"},             // duplicate
	}
	for _, ids := range cases {
		if _, err := svc.Reorder("user-1", ids); !errors.Is(err, queue.ErrReorderMismatch) {
			t.Errorf("expected ErrReorderMismatch for %v, got %v", ids, err)
		}
	}
}

func TestSetFilter(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")

	filter := models.EpisodeFilter{
		Mode:     models.FilterInclude,
		Episodes: []models.EpisodeKey{{Season: 1, Episode: 5}},
	}
	entry, err := svc.SetFilter("user-1", "show-1", filter)
	if err != nil {
		t.Fatalf("set filter returned error: %v", err)
	}
	if entry.Filter.Mode != models.FilterInclude || len(entry.Filter.Episodes) != 1 {
		t.Errorf("expected include filter with one key, got %+v", entry.Filter)
	}

	if _, err := svc.SetFilter("user-1", "show-1", models.EpisodeFilter{Mode: "some"}); !errors.Is(err, queue.ErrInvalidFilterMode) {
		t.Errorf("expected ErrInvalidFilterMode, got %v", err)
	}
	if _, err := svc.SetFilter("user-1", "ghost", filter); !errors.Is(err, queue.ErrNotInQueue) {
		t.Errorf("expected ErrNotInQueue, got %v", err)
	}
}

func TestSearchFoldsCaseAndAccents(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "Pokémon Journeys")
	addShow(t, svc, "user-1", "show-2", "Second Show")

	matches, err := svc.Search("user-1", "pokemon")
	if err != nil {
		t.Fatalf("search returned error: %v", err)
	}
	if len(matches) != 1 || matches[0].ContentID != "show-1" {
		t.Errorf("expected accent-folded match, got %+v", matches)
	}

	matches, _ = svc.Search("user-1", "SECOND")
	if len(matches) != 1 || matches[0].ContentID != "show-2" {
		t.Errorf("expected case-folded match, got %+v", matches)
	}

	all, _ := svc.Search("user-1", "  ")
	if len(all) != 2 {
		t.Errorf("expected empty query to return the whole queue, got %d", len(all))
	}

	none, _ := svc.Search("user-1", "zzz")
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil result, got %v", none)
	}
}

func TestPersistenceAcrossReload(t *testing.T) {
	dir := t.TempDir()

	svc, err := queue.NewService(dir)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-1", "show-2", "Second Show")

	reloaded, err := queue.NewService(dir)
	if err != nil {
		t.Fatalf("failed to reload service: %v", err)
	}

	list, err := reloaded.List("user-1")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(list) != 2 || list[0].ContentID != "show-1" {
		t.Errorf("expected persisted queue in order, got %+v", list)
	}
}

func TestQueuesAreScopedPerUser(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-2", "show-2", "Second Show")

	list, _ := svc.List("user-1")
	if len(list) != 1 || list[0].ContentID != "show-1" {
		t.Errorf("expected only user-1 entries, got %+v", list)
	}

	if _, ok := svc.Get("user-1", "show-2"); ok {
		t.Error("expected user-1 lookup of another user's entry to miss")
	}
}

func TestRemoveUser(t *testing.T) {
	svc := newService(t)

	addShow(t, svc, "user-1", "show-1", "First Show")
	addShow(t, svc, "user-2", "show-2", "Second Show")

	if err := svc.RemoveUser("user-1"); err != nil {
		t.Fatalf("remove user returned error: %v", err)
	}

	list, _ := svc.List("user-1")
	if len(list) != 0 {
		t.Errorf("expected user-1 queue cleared, got %d entries", len(list))
	}
	other, _ := svc.List("user-2")
	if len(other) != 1 {
		t.Errorf("expected user-2 queue untouched, got %d entries", len(other))
	}
}
