package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

const (
	maxMenuCommands = 100
	maxMenuDesc     = 256
)

func menuHash(cmds []kit.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

type menuCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

func menuPayload(cmds []kit.BotCommand) []menuCommand {
	out := make([]menuCommand, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = c.Command
		}
		if len(d) > maxMenuDesc {
			d = d[:maxMenuDesc]
		}
		out = append(out, menuCommand{Command: c.Command, Description: d})
		if len(out) >= maxMenuCommands {
			break
		}
	}
	return out
}

// UpdateMenuCommands publishes the command menu (setMyCommands). Unchanged
// lists are not resent.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	sum := menuHash(cmds)
	if sum == a.menuHash {
		return nil
	}
	items := menuPayload(cmds)
	b, err := json.Marshal(struct {
		Commands []menuCommand `json:"commands"`
	}{items})
	if err != nil {
		return err
	}

	url := a.apiURL + "/bot" + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("setMyCommands: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("setMyCommands: http=%d", resp.StatusCode)
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(items)))
	return nil
}
