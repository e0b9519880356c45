package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/crm-voice-assistant/internal/profile"
	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// Launcher starts and stops browser instances
type Launcher interface {
	Launch(ctx context.Context, sessionID, userDataDir string) (*Instance, error)
	Stop(ctx context.Context, containerID string) error
	IsHealthy(ctx context.Context, containerID string) bool
}

// Profiles persists user-data directories per CRM account
type Profiles interface {
	Restore(account, target string) error
	Save(account, userDataDir string) (*models.BrowserProfile, error)
}

type DriverConfig struct {
	LoginURL string
	InboxURL string
	// WorkDir holds one user-data directory per live session
	WorkDir     string
	Profiles    Profiles
	Logger      *slog.Logger
	PageTimeout time.Duration
	// SettleDelay is how long to wait after a form submit before polling
	// the next page
	SettleDelay time.Duration
}

// Driver signs in to the CRM and navigates it through a real browser
type Driver struct {
	launcher Launcher
	cfg      DriverConfig
	log      *slog.Logger
	dial     func(ctx context.Context, url string) (*CDP, error)

	mu       sync.Mutex
	sessions map[string]*remote
}

type remote struct {
	account  string
	instance *Instance
	cdp      *CDP
	target   string
}

// NewDriver creates a CDP driver launching browsers through launcher
func NewDriver(launcher Launcher, cfg DriverConfig) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "crm-browser-data")
	}

	return &Driver{
		launcher: launcher,
		cfg:      cfg,
		log:      cfg.Logger.With("component", "browser", "backend", "cdp"),
		dial:     DialCDP,
		sessions: make(map[string]*remote),
	}
}

func (d *Driver) Authenticate(ctx context.Context, creds models.Credentials) (string, error) {
	if creds.Username == "" {
		return "", fmt.Errorf("username is required")
	}

	handle := uuid.NewString()
	userDataDir := filepath.Join(d.cfg.WorkDir, handle)
	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create user data directory: %w", err)
	}

	if d.cfg.Profiles != nil {
		err := d.cfg.Profiles.Restore(creds.Username, userDataDir)
		switch {
		case errors.Is(err, profile.ErrProfileNotFound):
			d.log.Debug("no saved profile", "username", creds.Username)
		case err != nil:
			d.log.Warn("failed to restore profile", "username", creds.Username, "error", err)
		}
	}

	inst, err := d.launcher.Launch(ctx, handle, userDataDir)
	if err != nil {
		os.RemoveAll(userDataDir)
		return "", err
	}

	r := &remote{account: creds.Username, instance: inst}

	r.cdp, err = d.dial(ctx, inst.ConnectURL)
	if err != nil {
		d.teardown(r, false)
		return "", err
	}

	if err := d.attach(ctx, r); err != nil {
		d.teardown(r, false)
		return "", fmt.Errorf("attach page: %w", err)
	}

	if err := d.navigate(ctx, r, d.cfg.LoginURL); err != nil {
		d.teardown(r, false)
		return "", err
	}

	if err := d.login(ctx, r, creds); err != nil {
		d.teardown(r, false)
		return "", err
	}

	d.mu.Lock()
	d.sessions[handle] = r
	d.mu.Unlock()

	d.log.Info("logged into CRM", "username", creds.Username, "browser_session_id", handle)
	return handle, nil
}

func (d *Driver) NavigateToInbox(ctx context.Context, handle string) error {
	return d.Navigate(ctx, handle, d.cfg.InboxURL)
}

// Navigate loads url in the session's page and waits for it to finish
func (d *Driver) Navigate(ctx context.Context, handle, url string) error {
	r, err := d.lookup(handle)
	if err != nil {
		return err
	}
	return d.navigate(ctx, r, url)
}

func (d *Driver) End(ctx context.Context, handle string) error {
	d.mu.Lock()
	r, ok := d.sessions[handle]
	delete(d.sessions, handle)
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, handle)
	}

	return d.teardownContext(ctx, r, true)
}

// Status reports StatusEnded once the container behind a live handle has
// exited
func (d *Driver) Status(ctx context.Context, handle string) (string, error) {
	r, err := d.lookup(handle)
	if err != nil {
		return "", err
	}
	if !d.launcher.IsHealthy(ctx, r.instance.ContainerID) {
		return StatusEnded, nil
	}
	return StatusActive, nil
}

// Close ends every live session
func (d *Driver) Close(ctx context.Context) error {
	d.mu.Lock()
	handles := make([]string, 0, len(d.sessions))
	for h := range d.sessions {
		handles = append(handles, h)
	}
	d.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := d.End(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) lookup(handle string) (*remote, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, ok := d.sessions[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, handle)
	}
	return r, nil
}

func (d *Driver) teardown(r *remote, saveProfile bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.teardownContext(ctx, r, saveProfile); err != nil {
		d.log.Warn("browser teardown failed", "browser_session_id", r.instance.SessionID, "error", err)
	}
}

// teardownContext stops the browser before saving so Chrome has flushed
// its cookies to disk
func (d *Driver) teardownContext(ctx context.Context, r *remote, saveProfile bool) error {
	var errs []error

	if r.cdp != nil {
		r.cdp.Close()
	}

	if err := d.launcher.Stop(ctx, r.instance.ContainerID); err != nil {
		errs = append(errs, err)
	}

	if saveProfile && d.cfg.Profiles != nil {
		if _, err := d.cfg.Profiles.Save(r.account, r.instance.UserDataDir); err != nil {
			errs = append(errs, fmt.Errorf("save profile: %w", err))
		}
	}

	if r.instance.UserDataDir != "" {
		os.RemoveAll(r.instance.UserDataDir)
	}

	return errors.Join(errs...)
}

func (d *Driver) attach(ctx context.Context, r *remote) error {
	raw, err := r.cdp.Call(ctx, "", "Target.createTarget", map[string]any{"url": "about:blank"})
	if err != nil {
		return err
	}
	var target struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(raw, &target); err != nil {
		return fmt.Errorf("decode createTarget: %w", err)
	}

	raw, err = r.cdp.Call(ctx, "", "Target.attachToTarget", map[string]any{
		"targetId": target.TargetID,
		"flatten":  true,
	})
	if err != nil {
		return err
	}
	var attached struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &attached); err != nil {
		return fmt.Errorf("decode attachToTarget: %w", err)
	}
	r.target = attached.SessionID

	_, err = r.cdp.Call(ctx, r.target, "Page.enable", nil)
	return err
}

func (d *Driver) navigate(ctx context.Context, r *remote, url string) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PageTimeout)
	defer cancel()

	raw, err := r.cdp.Call(ctx, r.target, "Page.navigate", map[string]any{"url": url})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}

	var nav struct {
		ErrorText string `json:"errorText"`
	}
	if err := json.Unmarshal(raw, &nav); err != nil {
		return fmt.Errorf("decode navigate: %w", err)
	}
	if nav.ErrorText != "" {
		return fmt.Errorf("navigate to %s: %s", url, nav.ErrorText)
	}

	return d.waitReady(ctx, r)
}

func (d *Driver) waitReady(ctx context.Context, r *remote) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		var state string
		if err := d.evaluate(ctx, r, "document.readyState", &state); err != nil {
			return err
		}
		if state == "complete" {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("page did not finish loading: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (d *Driver) evaluate(ctx context.Context, r *remote, expression string, out any) error {
	raw, err := r.cdp.Call(ctx, r.target, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return err
	}

	var res struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("decode evaluate: %w", err)
	}
	if ex := res.ExceptionDetails; ex != nil {
		msg := ex.Exception.Description
		if msg == "" {
			msg = ex.Text
		}
		return fmt.Errorf("script error: %s", msg)
	}
	if out == nil || len(res.Result.Value) == 0 {
		return nil
	}
	return json.Unmarshal(res.Result.Value, out)
}

const loginScript = `(() => {
  const user = document.querySelector('input[name="user"], input[name="username"], input[type="email"], #username');
  const pass = document.querySelector('input[type="password"]');
  if (!user || !pass) throw new Error("login form not found");
  user.value = %s;
  pass.value = %s;
  const form = pass.form || user.form;
  if (!form) throw new Error("login form not found");
  form.requestSubmit ? form.requestSubmit() : form.submit();
  return "submitted";
})()`

const securityScript = `(() => {
  const answer = document.querySelector('input[name*="answer" i], input[id*="answer" i], input[name*="security" i]');
  if (!answer) return "absent";
  answer.value = %s;
  const form = answer.form;
  if (!form) throw new Error("security form not found");
  form.requestSubmit ? form.requestSubmit() : form.submit();
  return "answered";
})()`

const loggedInScript = `!document.querySelector('input[type="password"]')`

func (d *Driver) login(ctx context.Context, r *remote, creds models.Credentials) error {
	user, _ := json.Marshal(creds.Username)
	pass, _ := json.Marshal(creds.Password)

	if err := d.evaluate(ctx, r, fmt.Sprintf(loginScript, user, pass), nil); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := d.settle(ctx, r); err != nil {
		return err
	}

	if creds.SecurityAnswer != "" {
		answer, _ := json.Marshal(creds.SecurityAnswer)
		var outcome string
		if err := d.evaluate(ctx, r, fmt.Sprintf(securityScript, answer), &outcome); err != nil {
			return fmt.Errorf("answer security question: %w", err)
		}
		if outcome == "answered" {
			if err := d.settle(ctx, r); err != nil {
				return err
			}
		}
	}

	var loggedIn bool
	if err := d.evaluate(ctx, r, loggedInScript, &loggedIn); err != nil {
		return fmt.Errorf("check login: %w", err)
	}
	if !loggedIn {
		return fmt.Errorf("login rejected for %s", creds.Username)
	}
	return nil
}

func (d *Driver) settle(ctx context.Context, r *remote) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.cfg.SettleDelay):
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.PageTimeout)
	defer cancel()
	return d.waitReady(ctx, r)
}
