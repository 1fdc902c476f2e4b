package incident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/slack-go/slack"
)

const (
	notifierQueueSize   = 64
	defaultOneSignalURL = "https://onesignal.com/api/v1/notifications"
	defaultAdminUserID  = "admin"
)

// DeviceSource resolves the push devices registered for an operator.
type DeviceSource interface {
	OperatorDeviceIDs(userID string) ([]string, error)
}

// SlackPoster is the slice of the Slack API the notifier uses.
type SlackPoster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

type page struct {
	title string
	body  string
}

// Notifier fans an operator page out to OneSignal push devices and,
// when configured, a Slack ops channel. Every channel is best-effort and
// silently no-ops when its credentials are absent.
//
// No suppression window: a sustained outage pages once per failed request.
// Known operational risk, kept deliberately visible rather than smoothed
// over (see DESIGN.md).
type Notifier struct {
	appID       string
	apiKey      string
	adminUserID string
	endpoint    string
	devices     DeviceSource
	httpClient  *http.Client

	slackAPI   SlackPoster
	opsChannel string

	queue chan page

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NotifierConfig carries the credentials for both channels. Empty fields
// disable the matching channel.
type NotifierConfig struct {
	OneSignalAppID  string
	OneSignalAPIKey string
	AdminUserID     string
	SlackOpsChannel string
}

func NewNotifier(cfg NotifierConfig, devices DeviceSource, slackAPI SlackPoster, httpClient *http.Client) *Notifier {
	admin := cfg.AdminUserID
	if admin == "" {
		admin = defaultAdminUserID
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	n := &Notifier{
		appID:       cfg.OneSignalAppID,
		apiKey:      cfg.OneSignalAPIKey,
		adminUserID: admin,
		endpoint:    defaultOneSignalURL,
		devices:     devices,
		httpClient:  httpClient,
		slackAPI:    slackAPI,
		opsChannel:  cfg.SlackOpsChannel,
		queue:       make(chan page, notifierQueueSize),
	}
	n.wg.Add(1)
	go n.worker()
	return n
}

// Notify enqueues an operator page. Never blocks; a full queue drops it.
func (n *Notifier) Notify(title, body string) {
	select {
	case n.queue <- page{title: title, body: body}:
	default:
		log.Printf("notify queue full, dropped title=%q", title)
	}
}

func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.queue)
	})
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for p := range n.queue {
		n.pushOneSignal(p)
		n.postSlack(p)
	}
}

type oneSignalPayload struct {
	AppID            string            `json:"app_id"`
	IncludePlayerIDs []string          `json:"include_player_ids"`
	Headings         map[string]string `json:"headings"`
	Contents         map[string]string `json:"contents"`
}

func (n *Notifier) pushOneSignal(p page) {
	if n.appID == "" || n.apiKey == "" {
		return
	}

	ids, err := n.devices.OperatorDeviceIDs(n.adminUserID)
	if err != nil {
		log.Printf("notify device lookup error (ignored): %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}

	payload := oneSignalPayload{
		AppID:            n.appID,
		IncludePlayerIDs: ids,
		Headings:         map[string]string{"en": p.title},
		Contents:         map[string]string{"en": p.body},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify marshal error (ignored): %v", err)
		return
	}

	req, err := http.NewRequest("POST", n.endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("notify request error (ignored): %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Basic %s", n.apiKey))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("notify push error (ignored): %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("notify push status=%d (ignored)", resp.StatusCode)
		return
	}
	log.Printf("notify pushed devices=%d title=%q", len(ids), p.title)
}

func (n *Notifier) postSlack(p page) {
	if n.slackAPI == nil || n.opsChannel == "" {
		return
	}
	msg := fmt.Sprintf("*%s*\n%s", p.title, p.body)
	if _, _, err := n.slackAPI.PostMessage(n.opsChannel, slack.MsgOptionText(msg, false)); err != nil {
		log.Printf("notify slack error (ignored): %v", err)
	}
}
