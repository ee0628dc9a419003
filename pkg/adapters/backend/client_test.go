package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/answers"
	"github.com/aretw0/arbor/pkg/decision"
	"github.com/aretw0/arbor/pkg/ports"
)

func TestFetchTree(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/object/fetch", r.URL.Path)
		gotQuery = map[string]string{
			"uid":      r.URL.Query().Get("uid"),
			"ver":      r.URL.Query().Get("ver"),
			"ver_hash": r.URL.Query().Get("ver_hash"),
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"_uid": "form-1", "_typ": "decision_root", "name": "Form"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)

	t.Run("latest revision", func(t *testing.T) {
		data, err := c.FetchTree(context.Background(), ports.TreeRequest{UID: "form-1"})
		require.NoError(t, err)

		tree, err := decision.Decode(data)
		require.NoError(t, err)
		require.Equal(t, "form-1", tree.Meta().UID)
		require.Equal(t, "form-1", gotQuery["uid"])
		require.Empty(t, gotQuery["ver"])
	})

	t.Run("version pin", func(t *testing.T) {
		_, err := c.FetchTree(context.Background(), ports.TreeRequest{UID: "form-1", Version: 4})
		require.NoError(t, err)
		require.Equal(t, "4", gotQuery["ver"])
	})

	t.Run("hash pin", func(t *testing.T) {
		_, err := c.FetchTree(context.Background(), ports.TreeRequest{UID: "form-1", VersionHash: "abc"})
		require.NoError(t, err)
		require.Equal(t, "abc", gotQuery["ver_hash"])
	})
}

func TestFetchTreeErrors(t *testing.T) {
	t.Run("backend failure message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "tree unpublished"})
		}))
		defer srv.Close()

		_, err := New(srv.URL).FetchTree(context.Background(), ports.TreeRequest{UID: "x"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "tree unpublished")
	})

	t.Run("http 404", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := New(srv.URL).FetchTree(context.Background(), ports.TreeRequest{UID: "x"})
		require.ErrorIs(t, err, ports.ErrTreeNotFound)
	})
}

func TestUserDataRoundTrip(t *testing.T) {
	var submitted []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user_data/submit":
			body := json.RawMessage{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			submitted = body
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
		case "/user_data/fetch":
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": json.RawMessage(submitted)})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	q := &decision.Question{Label: "q"}
	q.UID = "q1"
	data := answers.New("user-1")
	data.AddAnswer(q, "hello", "")

	require.NoError(t, c.Submit(ctx, data))

	restored, err := c.Load(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", restored.Key)
	require.Equal(t, []string{"hello"}, restored.QuestionAnswers("q1", ""))
}

func TestLoadMissingUserData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": nil})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Load(context.Background(), "absent")
	require.ErrorIs(t, err, ports.ErrUserDataNotFound)
}
