package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Supported vendor platforms.
const (
	PlatformWhatsGPS   = "whatsgps"
	PlatformTrackSolid = "tracksolid"
)

const tokenTTL = 50 * time.Minute

// platformPaths holds the vendor-specific endpoint layout. Every endpoint
// is an HTTP GET returning a {ret, data, msg} envelope.
type platformPaths struct {
	login   string
	list    string
	status  string
	history string
}

var platforms = map[string]platformPaths{
	PlatformWhatsGPS: {
		login:   "/user/login.do",
		list:    "/car/getCarList.do",
		status:  "/car/getCarStatus.do",
		history: "/position/queryHistory.do",
	},
	PlatformTrackSolid: {
		login:   "/api/authorization",
		list:    "/api/device/list",
		status:  "/api/device/status",
		history: "/api/track/history",
	},
}

// PlatformConfig selects and authenticates against a vendor backend.
type PlatformConfig struct {
	Platform string
	BaseURL  string
	Account  string
	Password string
}

// Configured reports whether vendor credentials are present.
func (c PlatformConfig) Configured() bool {
	return c.Platform != "" && c.BaseURL != "" && c.Account != ""
}

// envelope is the vendor response wrapper: ret is 1 on success.
type envelope struct {
	Ret  int             `json:"ret"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// VehicleStatus is one device entry from the vendor's status list.
type VehicleStatus struct {
	DeviceID string  `json:"machineNo"`
	IMEI     string  `json:"imei"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lon"`
	Speed    float64 `json:"speed"`
	Course   float64 `json:"course"`
	GPSTime  int64   `json:"gpsTime"` // unix seconds
}

// Identifier returns the device key the vendor reports under.
func (v *VehicleStatus) Identifier() string {
	if v.IMEI != "" {
		return v.IMEI
	}
	return v.DeviceID
}

// PlatformClient talks to the configured third-party tracking platform. It
// caches the bearer token and re-authenticates on expiry.
type PlatformClient struct {
	cfg   PlatformConfig
	paths platformPaths
	http  *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewPlatformClient creates a vendor client. Returns an error for an
// unknown platform selector.
func NewPlatformClient(cfg PlatformConfig) (*PlatformClient, error) {
	paths, ok := platforms[cfg.Platform]
	if !ok && cfg.Platform != "" {
		return nil, fmt.Errorf("%w: unsupported platform %q", ErrInvalidInput, cfg.Platform)
	}
	return &PlatformClient{
		cfg:   cfg,
		paths: paths,
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Configured reports whether the client can reach a vendor.
func (c *PlatformClient) Configured() bool {
	return c != nil && c.cfg.Configured()
}

// Platform returns the configured platform selector.
func (c *PlatformClient) Platform() string {
	return c.cfg.Platform
}

// ensureToken returns a valid bearer token, logging in when the cached one
// is missing or expired.
func (c *PlatformClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp) {
		return c.token, nil
	}

	params := url.Values{}
	params.Set("name", c.cfg.Account)
	params.Set("password", c.cfg.Password)

	var data struct {
		Token string `json:"token"`
	}
	if err := c.get(ctx, c.paths.login, params, &data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrExternalUnavailable)
	}

	c.token = data.Token
	c.tokenExp = time.Now().Add(tokenTTL)
	return c.token, nil
}

// invalidateToken drops the cached token so the next call re-authenticates.
func (c *PlatformClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Vehicle is one device entry from the vendor's fleet list.
type Vehicle struct {
	DeviceID string `json:"machineNo"`
	Name     string `json:"carName"`
	IMEI     string `json:"imei"`
}

// Vehicles fetches the account's device list.
func (c *PlatformClient) Vehicles(ctx context.Context) ([]Vehicle, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("token", token)

	var vehicles []Vehicle
	if err := c.get(ctx, c.paths.list, params, &vehicles); err != nil {
		c.invalidateToken()
		return nil, err
	}
	return vehicles, nil
}

// VehicleStatuses fetches the full vehicle-status list.
func (c *PlatformClient) VehicleStatuses(ctx context.Context) ([]VehicleStatus, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("token", token)

	var statuses []VehicleStatus
	if err := c.get(ctx, c.paths.status, params, &statuses); err != nil {
		// A rejected token is refreshed once on the next tick.
		c.invalidateToken()
		return nil, err
	}
	return statuses, nil
}

// History fetches vendor-side track history for one device.
func (c *PlatformClient) History(ctx context.Context, identifier string, from, to time.Time) ([]VehicleStatus, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("token", token)
	params.Set("imei", identifier)
	params.Set("startTime", fmt.Sprintf("%d", from.Unix()))
	params.Set("endTime", fmt.Sprintf("%d", to.Unix()))

	var points []VehicleStatus
	if err := c.get(ctx, c.paths.history, params, &points); err != nil {
		c.invalidateToken()
		return nil, err
	}
	return points, nil
}

// get performs one envelope-wrapped vendor GET.
func (c *PlatformClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: vendor returned HTTP %d", ErrExternalUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: malformed vendor response: %v", ErrExternalUnavailable, err)
	}
	if env.Ret != 1 {
		return fmt.Errorf("%w: vendor error: %s", ErrExternalUnavailable, env.Msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: malformed vendor data: %v", ErrExternalUnavailable, err)
		}
	}
	return nil
}
