package app

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"padlink/api/internal/cleanup"
	"padlink/api/internal/etherpad"
	"padlink/api/internal/etherpad/etherpadtest"
	"padlink/api/internal/pad"
	"padlink/api/internal/store"
)

func TestDeleteEtherpadForItemIgnoresOtherTypes(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	folder := store.Item{ID: testItemID, Type: "folder"}
	if err := env.service.DeleteEtherpadForItem(context.Background(), folder); err != nil {
		t.Fatalf("delete hook: %v", err)
	}
	if len(env.etherpad.Calls()) != 0 {
		t.Fatalf("unexpected etherpad calls: %v", env.etherpad.Methods())
	}
}

func TestDeleteEtherpadForItemMissingPadID(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	item := store.Item{ID: testItemID, Type: store.ItemTypeEtherpad}
	err := env.service.DeleteEtherpadForItem(context.Background(), item)
	if !errors.Is(err, ErrIllegalState) {
		t.Fatalf("expected illegal state, got %v", err)
	}
	want := "illegal state: property padID is missing in etherpad extra for item " + testItemID
	if err.Error() != want {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if len(env.etherpad.Calls()) != 0 {
		t.Fatalf("unexpected etherpad calls: %v", env.etherpad.Methods())
	}
}

func TestDeleteEtherpadForItemDeletesPad(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	if err := env.service.DeleteEtherpadForItem(context.Background(), etherpadItem(testItemID)); err != nil {
		t.Fatalf("delete hook: %v", err)
	}
	calls := env.etherpad.CallsTo("deletePad")
	if len(calls) != 1 || calls[0].Get("padID") != testGroupID+"$"+testPadName {
		t.Fatalf("unexpected deletePad calls: %v", calls)
	}
}

func TestCopyEtherpadInMutableItem(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	item := store.Item{ID: testItemID, Type: store.ItemTypeEtherpad, Extra: pad.BuildExtra("g.source", "source-pad")}
	if err := env.service.CopyEtherpadInMutableItem(context.Background(), &item); err != nil {
		t.Fatalf("copy hook: %v", err)
	}

	if item.Extra.Etherpad == nil {
		t.Fatal("extra was cleared")
	}
	if item.Extra.Etherpad.PadID != testGroupID+"$"+testPadName || item.Extra.Etherpad.GroupID != testGroupID {
		t.Fatalf("extra not rewritten: %+v", item.Extra.Etherpad)
	}
	params := env.etherpad.Last("copyPad")
	if params == nil {
		t.Fatal("copyPad was not called")
	}
	if params.Get("sourceID") != "g.source$source-pad" || params.Get("destinationID") != testGroupID+"$"+testPadName {
		t.Fatalf("unexpected copyPad params: %v", params)
	}
	if params := env.etherpad.Last("createGroupIfNotExistsFor"); params.Get("groupMapper") != testPadName {
		t.Fatalf("group not mapped by pad name: %v", params)
	}
}

func TestCopyEtherpadInMutableItemMissingPadID(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	item := store.Item{ID: testItemID, Type: store.ItemTypeEtherpad, Extra: store.ItemExtra{Etherpad: &store.EtherpadExtra{GroupID: testGroupID}}}
	err := env.service.CopyEtherpadInMutableItem(context.Background(), &item)
	if !errors.Is(err, ErrIllegalState) {
		t.Fatalf("expected illegal state, got %v", err)
	}
	if len(env.etherpad.Calls()) != 0 {
		t.Fatalf("unexpected etherpad calls: %v", env.etherpad.Methods())
	}
}

func TestCopyEtherpadInMutableItemIgnoresOtherTypes(t *testing.T) {
	env := newTestEnv(t, &fakeStore{})

	item := store.Item{ID: testItemID, Type: "folder"}
	if err := env.service.CopyEtherpadInMutableItem(context.Background(), &item); err != nil {
		t.Fatalf("copy hook: %v", err)
	}
	if err := env.service.CopyEtherpadInMutableItem(context.Background(), nil); err != nil {
		t.Fatalf("copy hook on nil item: %v", err)
	}
	if len(env.etherpad.Calls()) != 0 {
		t.Fatalf("unexpected etherpad calls: %v", env.etherpad.Methods())
	}
}

func TestDeleteItemRemovesPads(t *testing.T) {
	fs := itemStore(etherpadItem(testItemID), "admin")
	orphan := store.Item{ID: testParentID, Type: store.ItemTypeEtherpad}
	folder := store.Item{ID: "folder", Type: "folder"}
	fs.deleteItemFn = func(_ context.Context, itemID string) ([]store.Item, error) {
		return []store.Item{etherpadItem(itemID), orphan, folder}, nil
	}
	env := newTestEnv(t, fs)
	env.etherpad.Reply("deletePad", etherpadtest.Fail("padID does not exist"))

	deleted, err := env.service.DeleteItem(context.Background(), testMember, testItemID)
	if err != nil {
		t.Fatalf("delete item: %v", err)
	}
	if len(deleted) != 3 {
		t.Fatalf("expected 3 deleted items, got %d", len(deleted))
	}
	if calls := env.etherpad.CallsTo("deletePad"); len(calls) != 1 {
		t.Fatalf("expected one deletePad call, got %d", len(calls))
	}
}

func TestDeleteItemRequiresAdmin(t *testing.T) {
	fs := itemStore(etherpadItem(testItemID), "write")
	deletes := 0
	fs.deleteItemFn = func(context.Context, string) ([]store.Item, error) {
		deletes++
		return nil, nil
	}
	env := newTestEnv(t, fs)

	_, err := env.service.DeleteItem(context.Background(), testMember, testItemID)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "GPEPERR004" {
		t.Fatalf("expected GPEPERR004, got %v", err)
	}
	if deletes != 0 || len(env.etherpad.Calls()) != 0 {
		t.Fatalf("forbidden delete reached the store or etherpad")
	}
}

func TestDeleteItemRoute(t *testing.T) {
	fs := itemStore(etherpadItem(testItemID), "admin")
	fs.deleteItemFn = func(_ context.Context, itemID string) ([]store.Item, error) {
		return []store.Item{etherpadItem(itemID)}, nil
	}
	env := newTestEnv(t, fs)

	rr := env.do(t, http.MethodDelete, "/items/"+testItemID, "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if payload["ok"] != true || payload["deleted"] != float64(1) {
		t.Fatalf("unexpected payload: %v", payload)
	}
	assertErrorCode(t, env.do(t, http.MethodDelete, "/items/"+testParentID, "", true), http.StatusNotFound, "GPEPERR002")
}

func TestCopyItem(t *testing.T) {
	source := etherpadItem(testItemID)
	source.Extra = pad.BuildExtra("g.source", "source-pad")
	fs := itemStore(source, "read")
	var stored store.Item
	fs.createItemFn = func(_ context.Context, item store.Item, parentID string) (store.Item, error) {
		if parentID != "" {
			t.Fatalf("unexpected parent %q", parentID)
		}
		item.Path = item.ID
		stored = item
		return item, nil
	}
	env := newTestEnv(t, fs)

	copied, err := env.service.CopyItem(context.Background(), testMember, testItemID, "")
	if err != nil {
		t.Fatalf("copy item: %v", err)
	}
	if copied.ID == source.ID || copied.Name != source.Name || copied.Creator != testMember.ID {
		t.Fatalf("unexpected copy: %+v", copied)
	}
	if stored.Extra.Etherpad.PadID != testGroupID+"$"+testPadName {
		t.Fatalf("stored copy points at %q", stored.Extra.Etherpad.PadID)
	}
	if source.Extra.Etherpad.PadID != "g.source$source-pad" {
		t.Fatal("source extra was modified")
	}
	if len(env.etherpad.CallsTo("copyPad")) != 1 {
		t.Fatalf("expected one copyPad call, got %v", env.etherpad.Methods())
	}
}

func TestCopyItemRequiresWriteOnParent(t *testing.T) {
	source := etherpadItem(testItemID)
	parent := etherpadItem(testParentID)
	fs := &fakeStore{
		getItemFn: func(_ context.Context, itemID string) (store.Item, error) {
			switch itemID {
			case testItemID:
				return source, nil
			case testParentID:
				return parent, nil
			}
			return store.Item{}, store.ErrNotFound
		},
		getPermissionFn: func(_ context.Context, _ string, path string) (string, error) {
			return "read", nil
		},
	}
	env := newTestEnv(t, fs)

	_, err := env.service.CopyItem(context.Background(), testMember, testItemID, testParentID)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "GPEPERR004" {
		t.Fatalf("expected GPEPERR004, got %v", err)
	}
	if len(env.etherpad.Calls()) != 0 {
		t.Fatalf("unexpected etherpad calls: %v", env.etherpad.Methods())
	}
}

func TestCopyItemStoreFailureSchedulesPadDeletion(t *testing.T) {
	fs := itemStore(etherpadItem(testItemID), "admin")
	fs.createItemFn = func(context.Context, store.Item, string) (store.Item, error) {
		return store.Item{}, errors.New("insert failed")
	}
	env := newTestEnv(t, fs)

	if _, err := env.service.CopyItem(context.Background(), testMember, testItemID, ""); err == nil {
		t.Fatal("expected copy to fail")
	}
	tasks := env.cleanup.Tasks()
	if len(tasks) != 1 || tasks[0].Kind != cleanup.KindDeletePad || tasks[0].Target != testGroupID+"$"+testPadName {
		t.Fatalf("unexpected cleanup tasks: %+v", tasks)
	}
}

func TestCopyItemEtherpadFailure(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), "admin"))
	env.etherpad.Reply("copyPad", etherpadtest.Reply{Status: http.StatusInternalServerError, Code: etherpad.CodeInternalError, Message: "boom"})

	_, err := env.service.CopyItem(context.Background(), testMember, testItemID, "")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "GPEPERR001" {
		t.Fatalf("expected GPEPERR001, got %v", err)
	}
	if len(env.cleanup.Tasks()) != 0 {
		t.Fatalf("nothing to clean up, got %+v", env.cleanup.Tasks())
	}
}

func TestCopyItemRoute(t *testing.T) {
	env := newTestEnv(t, itemStore(etherpadItem(testItemID), "read"))

	rr := env.do(t, http.MethodPost, "/items/"+testItemID+"/copy", "", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	payload := decodeJSON(t, rr)
	if payload["id"] == testItemID || payload["type"] != "etherpad" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	assertErrorCode(t, env.do(t, http.MethodPost, "/items/"+testItemID+"/copy?parentId=x", "", true), http.StatusBadRequest, "INVALID_REQUEST")
}

func TestMissingPadIDMapsToIllegalState(t *testing.T) {
	status, code, message, _ := mapError(errMissingPadID(testItemID))
	if status != http.StatusInternalServerError || code != "ILLEGAL_STATE" {
		t.Fatalf("mapError() = %d %s", status, code)
	}
	if message != "illegal state: property padID is missing in etherpad extra for item "+testItemID {
		t.Fatalf("unexpected message %q", message)
	}
}
