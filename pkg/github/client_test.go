package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saint0x/reposage/pkg/api"
	"github.com/saint0x/reposage/pkg/log"
	"github.com/saint0x/reposage/pkg/types"
)

var testRepo = types.Repo{Owner: "acme", Name: "widgets"}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := New(log.Discard(), "test-token", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantError bool
	}{
		{
			name:      "HTTPS URL",
			url:       "https://github.com/owner/repo.git",
			wantOwner: "owner",
			wantRepo:  "repo",
		},
		{
			name:      "SSH URL",
			url:       "git@github.com:owner/repo.git",
			wantOwner: "owner",
			wantRepo:  "repo",
		},
		{
			name:      "Simple URL",
			url:       "https://github.com/owner/repo",
			wantOwner: "owner",
			wantRepo:  "repo",
		},
		{
			name:      "Short form",
			url:       "owner/repo",
			wantOwner: "owner",
			wantRepo:  "repo",
		},
		{
			name:      "Invalid URL",
			url:       "not-a-url",
			wantError: true,
		},
		{
			name:      "Invalid Path",
			url:       "https://github.com/invalid",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := ParseRepoURL(tt.url)

			if tt.wantError {
				if err == nil {
					t.Errorf("ParseRepoURL() error = nil, want error")
				}
				return
			}

			if err != nil {
				t.Errorf("ParseRepoURL() error = %v, want nil", err)
				return
			}

			if repo.Owner != tt.wantOwner {
				t.Errorf("ParseRepoURL() owner = %v, want %v", repo.Owner, tt.wantOwner)
			}

			if repo.Name != tt.wantRepo {
				t.Errorf("ParseRepoURL() repo = %v, want %v", repo.Name, tt.wantRepo)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		logger    *log.Logger
		token     string
		wantError bool
	}{
		{
			name:   "Valid token",
			logger: log.Discard(),
			token:  "test-token",
		},
		{
			name:      "Empty token",
			logger:    log.Discard(),
			wantError: true,
		},
		{
			name:      "Missing logger",
			token:     "test-token",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.logger, tt.token)

			if tt.wantError {
				if err == nil {
					t.Error("New() error = nil, want error")
				}
				return
			}

			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if client.client == nil {
				t.Error("New() client.client is nil")
			}
			if client.logger != tt.logger {
				t.Error("New() client.logger not set correctly")
			}
		})
	}
}

func TestDefaultBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"default_branch": "develop"}`)
	})

	branch, err := newTestClient(t, mux).DefaultBranch(context.Background(), testRepo)
	if err != nil {
		t.Fatalf("DefaultBranch() error = %v", err)
	}
	if branch != "develop" {
		t.Errorf("DefaultBranch() = %q, want develop", branch)
	}
}

func TestGetFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/contents/src/app.py", func(w http.ResponseWriter, r *http.Request) {
		if ref := r.URL.Query().Get("ref"); ref != "main" {
			t.Errorf("ref = %q, want main", ref)
		}
		fmt.Fprintf(w, `{"type": "file", "encoding": "base64", "path": "src/app.py", "sha": "blob1", "content": %q}`,
			base64.StdEncoding.EncodeToString([]byte("print('hi')\n")))
	})

	f, err := newTestClient(t, mux).GetFile(context.Background(), testRepo, "main", "src/app.py")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if f.Content != "print('hi')\n" {
		t.Errorf("GetFile() content = %q", f.Content)
	}
	if f.SHA != "blob1" {
		t.Errorf("GetFile() sha = %q, want blob1", f.SHA)
	}
}

func TestListTree(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("recursive") == "" {
			t.Error("tree not requested recursively")
		}
		fmt.Fprint(w, `{"sha": "t1", "truncated": false, "tree": [
			{"path": "README.md", "type": "blob", "size": 12},
			{"path": "src", "type": "tree"},
			{"path": "src/app.py", "type": "blob", "size": 40}
		]}`)
	})

	entries, err := newTestClient(t, mux).ListTree(context.Background(), testRepo, "main")
	if err != nil {
		t.Fatalf("ListTree() error = %v", err)
	}
	want := []types.TreeEntry{{Path: "README.md", Size: 12}, {Path: "src/app.py", Size: 40}}
	if len(entries) != len(want) {
		t.Fatalf("ListTree() = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("ListTree()[%d] = %v, want %v", i, entries[i], want[i])
		}
	}
}

func TestCreateBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ref": "refs/heads/main", "object": {"type": "commit", "sha": "base-sha"}}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/refs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var body struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Ref != "refs/heads/reposage-improvements-x" || body.SHA != "base-sha" {
			t.Errorf("create ref body = %+v", body)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ref": "refs/heads/reposage-improvements-x", "object": {"sha": "base-sha"}}`)
	})

	err := newTestClient(t, mux).CreateBranch(context.Background(), testRepo, "main", "reposage-improvements-x")
	if err != nil {
		t.Fatalf("CreateBranch() error = %v", err)
	}
}

func TestCommitFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/contents/app.py", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Message string `json:"message"`
			Content string `json:"content"`
			SHA     string `json:"sha"`
			Branch  string `json:"branch"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.SHA != "blob1" {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"message": "app.py does not match blob1"}`)
			return
		}
		content, _ := base64.StdEncoding.DecodeString(body.Content)
		if string(content) != "new\n" || body.Branch != "main" || body.Message != "Improve app.py" {
			t.Errorf("commit body = %+v (content %q)", body, content)
		}
		fmt.Fprint(w, `{"content": {"sha": "blob2"}, "commit": {"sha": "commit1"}}`)
	})
	client := newTestClient(t, mux)

	sha, err := client.CommitFile(context.Background(), testRepo, "main", "app.py", "new\n", "Improve app.py", "blob1")
	if err != nil {
		t.Fatalf("CommitFile() error = %v", err)
	}
	if sha != "commit1" {
		t.Errorf("CommitFile() = %q, want commit1", sha)
	}

	_, err = client.CommitFile(context.Background(), testRepo, "main", "app.py", "new\n", "Improve app.py", "stale")
	if kind := api.KindOf(err); kind != api.KindConflict {
		t.Errorf("stale CommitFile() kind = %v, want Conflict (err %v)", kind, err)
	}
}

func TestOpenPullRequest(t *testing.T) {
	labelled := false
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["head"] != "feature" || body["base"] != "main" || body["title"] != "RepoSage: Improve a.py" {
			t.Errorf("pull request body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 7, "html_url": "https://github.com/acme/widgets/pull/7"}`)
	})
	mux.HandleFunc("/repos/acme/widgets/issues/7/labels", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if string(data) != "[\"reposage\"]\n" {
			t.Errorf("labels body = %q", data)
		}
		labelled = true
		fmt.Fprint(w, `[{"name": "reposage"}]`)
	})

	pr, err := newTestClient(t, mux).OpenPullRequest(context.Background(), testRepo, "feature", "main", "RepoSage: Improve a.py", "body", []string{"reposage"})
	if err != nil {
		t.Fatalf("OpenPullRequest() error = %v", err)
	}
	if pr.Number != 7 || pr.URL != "https://github.com/acme/widgets/pull/7" {
		t.Errorf("OpenPullRequest() = %+v", pr)
	}
	if !labelled {
		t.Error("labels were not applied")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		body    string
		want    api.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, nil, `{"message": "Bad credentials"}`, api.KindAuth},
		{"forbidden", http.StatusForbidden, nil, `{"message": "Resource not accessible"}`, api.KindAuth},
		{"not found", http.StatusNotFound, nil, `{"message": "Not Found"}`, api.KindNotFound},
		{"conflict", http.StatusConflict, nil, `{"message": "conflict"}`, api.KindConflict},
		{"too many requests", http.StatusTooManyRequests, nil, `{"message": "slow down"}`, api.KindRateLimited},
		{"server error", http.StatusBadGateway, nil, `{"message": "bad gateway"}`, api.KindTransient},
		{
			name:   "primary rate limit",
			status: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Limit":     "60",
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     "1",
			},
			body: `{"message": "API rate limit exceeded for 127.0.0.1."}`,
			want: api.KindRateLimited,
		},
		{
			name:    "secondary rate limit",
			status:  http.StatusForbidden,
			headers: map[string]string{"Retry-After": "30"},
			body:    `{"message": "You have exceeded a secondary rate limit", "documentation_url": "https://docs.github.com/rest/overview/resources-in-the-rest-api#secondary-rate-limits"}`,
			want:    api.KindRateLimited,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := newTestClient(t, mux).DefaultBranch(context.Background(), testRepo)
			if err == nil {
				t.Fatal("DefaultBranch() error = nil")
			}
			if kind := api.KindOf(err); kind != tt.want {
				t.Errorf("KindOf() = %v, want %v (err %v)", kind, tt.want, err)
			}
		})
	}
}
