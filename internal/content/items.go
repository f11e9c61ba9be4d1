package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "totdbot/pkg/logx"
)

// LeaderboardThresholds are the positions shown below the top ten.
var LeaderboardThresholds = []int{100, 1000, 10000}

type campaignMonth struct {
	MonthList []struct {
		Days []struct {
			MapUID        string `json:"mapUid"`
			SeasonUID     string `json:"seasonUid"`
			RelativeStart int64  `json:"relativeStart"`
			RelativeEnd   int64  `json:"relativeEnd"`
		} `json:"days"`
	} `json:"monthList"`
}

type mapInfo struct {
	MapUID       string `json:"mapUid"`
	Name         string `json:"name"`
	Author       string `json:"author"`
	BronzeScore  int    `json:"bronzeScore"`
	SilverScore  int    `json:"silverScore"`
	GoldScore    int    `json:"goldScore"`
	AuthorScore  int    `json:"authorScore"`
	Timestamp    string `json:"timestamp"`
	ThumbnailURL string `json:"thumbnailUrl"`
}

type tmxResult struct {
	Results []struct {
		Name         string `json:"Name"`
		MapID        int    `json:"MapId"`
		HasImages    bool   `json:"HasImages"`
		HasThumbnail bool   `json:"HasThumbnail"`
		UpdatedAt    string `json:"UpdatedAt"`
		Tags         []struct {
			Name string `json:"Name"`
		} `json:"Tags"`
	} `json:"Results"`
}

type leaderboardTop struct {
	Tops []struct {
		Top []struct {
			AccountID string `json:"accountId"`
			Score     int    `json:"score"`
			Position  int    `json:"position"`
		} `json:"top"`
	} `json:"tops"`
}

// CurrentItem returns the item whose window contains now, enriched with the
// author's display name and exchange metadata when available.
func (c *Client) CurrentItem(ctx context.Context) (Item, error) {
	var month campaignMonth
	err := c.call(ctx, request{
		endpoint: "live.campaign",
		aud:      audLive,
		method:   http.MethodGet,
		url:      c.cfg.Endpoints.Live + "/api/token/campaign/month?length=5&offset=0&royal=false",
	}, &month)
	if err != nil {
		return Item{}, err
	}
	if len(month.MonthList) == 0 {
		return Item{}, ErrNoCurrentItem
	}

	var uid, season string
	for _, d := range month.MonthList[0].Days {
		if d.RelativeStart < 0 && d.RelativeEnd > 0 {
			uid, season = d.MapUID, d.SeasonUID
			break
		}
	}
	if uid == "" {
		c.log.Warn("no running item in campaign listing", logx.Int("days", len(month.MonthList[0].Days)))
		return Item{}, ErrNoCurrentItem
	}

	var maps []mapInfo
	err = c.call(ctx, request{
		endpoint: "core.maps",
		aud:      audCore,
		method:   http.MethodGet,
		url:      c.cfg.Endpoints.Core + "/maps/?mapUidList=" + url.QueryEscape(uid),
	}, &maps)
	if err != nil {
		return Item{}, err
	}
	if len(maps) == 0 {
		return Item{}, fmt.Errorf("%w: map %s not found", ErrNoCurrentItem, uid)
	}
	m := maps[0]

	it := Item{
		ID:           uid,
		SeasonID:     season,
		Name:         m.Name,
		Author:       m.Author,
		Bronze:       m.BronzeScore,
		Silver:       m.SilverScore,
		Gold:         m.GoldScore,
		AuthorTime:   m.AuthorScore,
		ThumbnailURL: m.ThumbnailURL,
		Day:          CycleDate(c.now(), c.cfg.Location, c.cfg.BoundaryHour).Format(time.DateOnly),
	}
	if ts, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
		it.UploadedAt = ts
	}

	names, err := c.playerNames(ctx, []string{m.Author})
	if err != nil {
		c.log.Warn("author name lookup failed", logx.String("author", m.Author), logx.Err(err))
	} else {
		it.AuthorName = names[m.Author]
	}

	c.applyTMX(ctx, &it)
	return it, nil
}

// applyTMX adds exchange metadata. The exchange is optional; failures only log.
func (c *Client) applyTMX(ctx context.Context, it *Item) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.TMXTimeout)
	defer cancel()

	var res tmxResult
	err := c.do(tctx, request{
		endpoint: "tmx.maps",
		method:   http.MethodGet,
		url:      c.cfg.Endpoints.TMX + "/api/maps/?uid=" + url.QueryEscape(it.ID) + "&fields=Tags,Name,HasImages,HasThumbnail,MapId,UpdatedAt",
	}, &res)
	if err != nil {
		c.log.Info("exchange lookup failed", logx.String("item", it.ID), logx.Err(err))
		return
	}
	if len(res.Results) != 1 {
		return
	}
	r := res.Results[0]
	it.TMXID = r.MapID
	it.TMXName = r.Name
	it.Tags = it.Tags[:0]
	for _, t := range r.Tags {
		it.Tags = append(it.Tags, t.Name)
	}
	switch {
	case r.HasImages:
		it.ThumbnailURL = c.cfg.Endpoints.TMX + "/mapimage/" + strconv.Itoa(r.MapID) + "/1"
	case r.HasThumbnail:
		it.ThumbnailURL = c.cfg.Endpoints.TMX + "/mapimage/" + strconv.Itoa(r.MapID) + "/0"
	}
	if it.UploadedAt.IsZero() && r.UpdatedAt != "" {
		// exchange timestamps without an offset are UTC
		if ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", r.UpdatedAt, time.UTC); err == nil {
			it.UploadedAt = ts
		} else if ts, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
			it.UploadedAt = ts
		}
	}
}

// Leaderboard returns the top ten of item followed by the threshold positions that exist.
func (c *Client) Leaderboard(ctx context.Context, item Item) (Leaderboard, error) {
	top, err := c.leaderboardPage(ctx, item, 10, 0)
	if err != nil {
		return Leaderboard{}, err
	}
	if len(top) == 0 {
		return Leaderboard{}, ErrNoRecords
	}
	for i := range top {
		top[i].Position = i + 1
	}

	records := top
	for _, pos := range LeaderboardThresholds {
		page, err := c.leaderboardPage(ctx, item, 1, pos-1)
		if err != nil {
			return Leaderboard{}, err
		}
		if len(page) == 0 {
			continue
		}
		page[0].Position = pos
		records = append(records, page[0])
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.AccountID)
	}
	names, err := c.playerNames(ctx, ids)
	if err != nil {
		c.log.Warn("player name lookup failed", logx.Int("accounts", len(ids)), logx.Err(err))
	}
	for i := range records {
		if n := names[records[i].AccountID]; n != "" {
			records[i].PlayerName = n
		} else {
			records[i].PlayerName = records[i].AccountID
		}
	}
	return Leaderboard{ItemID: item.ID, SeasonID: item.SeasonID, Records: records}, nil
}

func (c *Client) leaderboardPage(ctx context.Context, item Item, length, offset int) ([]Record, error) {
	q := url.Values{}
	q.Set("length", strconv.Itoa(length))
	q.Set("onlyWorld", "true")
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var lb leaderboardTop
	err := c.call(ctx, request{
		endpoint: "live.leaderboard",
		aud:      audLive,
		method:   http.MethodGet,
		url: c.cfg.Endpoints.Live + "/api/token/leaderboard/group/" + url.PathEscape(item.SeasonID) +
			"/map/" + url.PathEscape(item.ID) + "/top?" + q.Encode(),
	}, &lb)
	if err != nil {
		return nil, err
	}
	if len(lb.Tops) == 0 {
		return nil, nil
	}
	out := make([]Record, 0, len(lb.Tops[0].Top))
	for _, r := range lb.Tops[0].Top {
		out = append(out, Record{AccountID: r.AccountID, Score: r.Score, Position: r.Position})
	}
	return out, nil
}

func (c *Client) playerNames(ctx context.Context, ids []string) (map[string]string, error) {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			parts = append(parts, "accountId[]="+url.QueryEscape(id))
		}
	}
	out := map[string]string{}
	if len(parts) == 0 {
		return out, nil
	}
	err := c.call(ctx, request{
		endpoint: "oauth.names",
		aud:      audOAuth,
		method:   http.MethodGet,
		url:      c.cfg.Endpoints.OAuth + "/api/display-names/?" + strings.Join(parts, "&"),
	}, &out)
	return out, err
}
