package dvrip

import (
	"fmt"
	"time"

	"github.com/openipc/dvrip-go/internal/protocol"
	"github.com/openipc/dvrip-go/internal/session"
)

// GetTime reads the device's current clock.
func (c *Client) GetTime() (time.Time, error) {
	resp, err := c.rpc.GetCode("OPTimeQuery", protocol.MsgTimeQuery)
	if err != nil {
		return time.Time{}, err
	}
	if !resp.OK() {
		return time.Time{}, fmt.Errorf("dvrip: get time rejected, ret=%d", resp.Ret)
	}
	raw, ok := resp.Field("OPTimeQuery")
	if !ok {
		return time.Time{}, fmt.Errorf("dvrip: get time reply missing OPTimeQuery")
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("dvrip: get time reply has unexpected type %T", raw)
	}
	return time.Parse("2006-01-02 15:04:05", s)
}

// SetTime writes the device's clock.
func (c *Client) SetTime(t time.Time) error {
	resp, err := c.rpc.SetCode("OPTimeSetting", t.Format("2006-01-02 15:04:05"), protocol.MsgMachine)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: set time rejected, ret=%d", resp.Ret)
	}
	return nil
}

// Reboot asks the device to restart.
func (c *Client) Reboot() error {
	resp, err := c.rpc.SetCode("OPMachine", map[string]any{"Action": "Reboot"}, protocol.MsgMachine)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: reboot rejected, ret=%d", resp.Ret)
	}
	return nil
}

// MailTest asks the device to send a test email using its configured SMTP
// settings.
func (c *Client) MailTest() error {
	resp, err := c.rpc.SendRaw(protocol.MsgMailTest, map[string]any{"Name": "OPMailTest"}, true)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: mail test rejected, ret=%d", resp.Ret)
	}
	return nil
}

// Talk uploads one chunk of PCM audio to the device's two-way talk
// channel. The device does not acknowledge individual chunks.
func (c *Client) Talk(channel int, pcm []byte) error {
	_, err := c.rpc.SendRaw(protocol.MsgTalk, map[string]any{
		"Name": "OPTalk",
		"OPTalk": map[string]any{
			"Action":  "Data",
			"Channel": channel,
			"Data":    pcm,
		},
	}, false)
	return err
}

// PTZDirection is the closed set of pan/tilt/zoom directions the device
// accepts.
type PTZDirection string

const (
	PTZUp       PTZDirection = "DirectionUp"
	PTZDown     PTZDirection = "DirectionDown"
	PTZLeft     PTZDirection = "DirectionLeft"
	PTZRight    PTZDirection = "DirectionRight"
	PTZZoomIn   PTZDirection = "ZoomTile"
	PTZZoomOut  PTZDirection = "ZoomWide"
	PTZFocusIn  PTZDirection = "FocusFar"
	PTZFocusOut PTZDirection = "FocusNear"
)

// PTZMove starts continuous pan/tilt/zoom motion in one direction at the
// given speed (1-8). The caller must issue PTZStop to halt it.
func (c *Client) PTZMove(channel int, dir PTZDirection, speed int) error {
	return c.ptzCommand(channel, "Start", dir, speed)
}

// PTZStop halts motion started by PTZMove.
func (c *Client) PTZStop(channel int, dir PTZDirection) error {
	return c.ptzCommand(channel, "Stop", dir, 0)
}

// PTZStep performs a single bounded move: start then immediately stop, for
// callers that want one nudge rather than continuous motion.
func (c *Client) PTZStep(channel int, dir PTZDirection, speed int) error {
	if err := c.PTZMove(channel, dir, speed); err != nil {
		return err
	}
	return c.PTZStop(channel, dir)
}

// ptzCommand issues one OPPTZControl call. Continuous motion has no
// explicit stop field: starting sets Preset to 65535 and stopping sets it
// to -1, both under Pattern "SetBegin".
func (c *Client) ptzCommand(channel int, action string, dir PTZDirection, speed int) error {
	preset := -1
	if action == "Start" {
		preset = 65535
	}
	resp, err := c.rpc.SetCode("OPPTZControl", map[string]any{
		"Command": dir,
		"Parameter": map[string]any{
			"AUX":      map[string]any{"Number": 0, "Status": "On"},
			"Channel":  channel,
			"MenuOpts": "Enter",
			"Pattern":  "SetBegin",
			"Preset":   preset,
			"Step":     speed,
			"Tour":     0,
		},
	}, protocol.MsgPTZControl)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: ptz %s rejected, ret=%d", action, resp.Ret)
	}
	return nil
}

// User is one entry in the device's user table.
type User struct {
	Name      string
	Group     string
	Comment   string
	Authority []string
	Reserved  bool
	Sharable  bool
}

// ListUsers returns the device's configured accounts.
func (c *Client) ListUsers() ([]User, error) {
	resp, err := c.rpc.GetCode("Users", protocol.MsgUsers)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("dvrip: list users rejected, ret=%d", resp.Ret)
	}
	raw, _ := resp.Field("Users")
	entries, _ := raw.([]any)
	out := make([]User, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, userFromMap(m))
	}
	return out, nil
}

func userFromMap(m map[string]any) User {
	name, _ := m["Name"].(string)
	group, _ := m["Group"].(string)
	comment, _ := m["Memo"].(string)
	reserved, _ := m["Reserved"].(bool)
	sharable, _ := m["Sharable"].(bool)
	var authority []string
	if raw, ok := m["AuthorityList"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				authority = append(authority, s)
			}
		}
	}
	return User{Name: name, Group: group, Comment: comment, Authority: authority, Reserved: reserved, Sharable: sharable}
}

// AddUser creates a new account. sharable controls whether the account can
// be used from more than one concurrent session.
func (c *Client) AddUser(name, password, group, comment string, authority []string, sharable bool) error {
	resp, err := c.rpc.SetCode("User", map[string]any{
		"AuthorityList": authority,
		"Group":         group,
		"Memo":          comment,
		"Name":          name,
		"Password":      session.SofiaHash(password),
		"Reserved":      false,
		"Sharable":      sharable,
	}, protocol.MsgUser)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: add user rejected, ret=%d", resp.Ret)
	}
	return nil
}

// ModifyUser updates an existing account's group, comment and authority
// list. It does not touch the account's password; use ChangePassword for
// that.
func (c *Client) ModifyUser(name, group, comment string, authority []string, reserved, sharable bool) error {
	resp, err := c.rpc.SendRaw(protocol.MsgModifyUser, map[string]any{
		"SessionID": session.FormatSessionID(c.sess.SessionID()),
		"User": map[string]any{
			"AuthorityList": authority,
			"Group":         group,
			"Memo":          comment,
			"Name":          name,
			"Password":      "",
			"Reserved":      reserved,
			"Sharable":      sharable,
		},
		"UserName": name,
	}, true)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: modify user rejected, ret=%d", resp.Ret)
	}
	return nil
}

// DelUser removes an account.
func (c *Client) DelUser(name string) error {
	resp, err := c.rpc.SendRaw(protocol.MsgDelUser, map[string]any{
		"Name":      name,
		"SessionID": session.FormatSessionID(c.sess.SessionID()),
	}, true)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: delete user rejected, ret=%d", resp.Ret)
	}
	return nil
}

// ChangePassword sets a new password for name. oldPassword authenticates
// the change; pass the empty string to authenticate with the Client's own
// login password instead (only valid when name is the logged-in account).
func (c *Client) ChangePassword(name, newPassword, oldPassword string) error {
	oldHash := session.SofiaHash(oldPassword)
	if oldPassword == "" {
		oldHash = session.SofiaHash(c.cfg.Password)
	}
	resp, err := c.rpc.SendRaw(protocol.MsgModifyPassword, map[string]any{
		"EncryptType": "MD5",
		"NewPassWord": session.SofiaHash(newPassword),
		"PassWord":    oldHash,
		"SessionID":   session.FormatSessionID(c.sess.SessionID()),
		"UserName":    name,
	}, true)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: change password rejected, ret=%d", resp.Ret)
	}
	return nil
}

// Group is one entry in the device's permission-group table.
type Group struct {
	Name      string
	Comment   string
	Authority []string
}

// ListGroups returns the device's configured permission groups.
func (c *Client) ListGroups() ([]Group, error) {
	resp, err := c.rpc.GetCode("Groups", protocol.MsgGroups)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("dvrip: list groups rejected, ret=%d", resp.Ret)
	}
	raw, _ := resp.Field("Groups")
	entries, _ := raw.([]any)
	out := make([]Group, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["Name"].(string)
		comment, _ := m["Memo"].(string)
		var authority []string
		if a, ok := m["AuthorityList"].([]any); ok {
			for _, v := range a {
				if s, ok := v.(string); ok {
					authority = append(authority, s)
				}
			}
		}
		out = append(out, Group{Name: name, Comment: comment, Authority: authority})
	}
	return out, nil
}

// AddGroup creates a new permission group.
func (c *Client) AddGroup(name, comment string, authority []string) error {
	resp, err := c.rpc.SetCode("AddGroup", map[string]any{
		"Group": map[string]any{
			"AuthorityList": authority,
			"Memo":          comment,
			"Name":          name,
		},
	}, protocol.MsgAddGroup)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: add group rejected, ret=%d", resp.Ret)
	}
	return nil
}

// DelGroup removes a permission group.
func (c *Client) DelGroup(name string) error {
	resp, err := c.rpc.SendRaw(protocol.MsgDelGroup, map[string]any{
		"Name":      name,
		"SessionID": session.FormatSessionID(c.sess.SessionID()),
	}, true)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: delete group rejected, ret=%d", resp.Ret)
	}
	return nil
}

// AuthorityList returns the full set of permission strings the device
// understands, for building AddUser/AddGroup calls.
func (c *Client) AuthorityList() ([]string, error) {
	resp, err := c.rpc.GetCode("AuthorityList", protocol.MsgAuthorityList)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("dvrip: authority list rejected, ret=%d", resp.Ret)
	}
	raw, _ := resp.Field("AuthorityList")
	entries, _ := raw.([]any)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}
