package connector

import (
	"context"
	"fmt"

	"github.com/duo/webqq/pkg/qqid"

	"github.com/tidwall/gjson"
)

// GetFriendStatus lists the friends that are currently online.
func (qc *QQClient) GetFriendStatus(ctx context.Context) ([]qqid.FriendStatus, error) {
	ep, err := qc.Main.Config.Endpoint(EndpointFriendStatus)
	if err != nil {
		return nil, err
	}

	resp, err := qc.Transport.GetRetryNotFound(ctx, ep, qc.Main.Config.Login.NotFoundRetries,
		qc.session.Vfwebqq, qc.session.ClientID, qc.session.PSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get friend status: %w", err)
	}
	result, err := parseEnvelope(qc.Log, ep, resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get friend status: %w", err)
	}
	if !result.Exists() {
		return []qqid.FriendStatus{}, nil
	}
	if !result.IsArray() {
		return nil, &ProtocolError{Endpoint: ep.Name(), Reason: "friend status result is not a list"}
	}

	friends := make([]qqid.FriendStatus, 0, len(result.Array()))
	for _, item := range result.Array() {
		friends = append(friends, qqid.FriendStatus{
			Uin:        item.Get("uin").Int(),
			Status:     item.Get("status").String(),
			ClientType: int(item.Get("client_type").Int()),
		})
	}

	qc.Log.Debug().Int("count", len(friends)).Msg("Fetched friend status")
	return friends, nil
}

// GetAccountInfo loads the profile of the logged in account.
func (qc *QQClient) GetAccountInfo(ctx context.Context) (*qqid.AccountInfo, error) {
	ep, err := qc.Main.Config.Endpoint(EndpointAccountInfo)
	if err != nil {
		return nil, err
	}

	resp, err := qc.Transport.GetRetryNotFound(ctx, ep, qc.Main.Config.Login.NotFoundRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	result, err := parseEnvelope(qc.Log, ep, resp)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}
	if !result.IsObject() {
		return nil, &ProtocolError{Endpoint: ep.Name(), Reason: "account info result is not an object"}
	}

	return accountInfoFromResult(result), nil
}

// Profile fields come back as strings or numbers depending on the account, so
// each one is coerced instead of unmarshaled.
func accountInfoFromResult(result gjson.Result) *qqid.AccountInfo {
	birthday := result.Get("birthday")
	return &qqid.AccountInfo{
		Uin:      result.Get("uin").Int(),
		Nick:     result.Get("nick").String(),
		LongNick: result.Get("lnick").String(),
		Gender:   result.Get("gender").String(),
		Birthday: qqid.Birthday{
			Year:  int(birthday.Get("year").Int()),
			Month: int(birthday.Get("month").Int()),
			Day:   int(birthday.Get("day").Int()),
		},
		Email:      result.Get("email").String(),
		Phone:      result.Get("phone").String(),
		Mobile:     result.Get("mobile").String(),
		Occupation: result.Get("occupation").String(),
		College:    result.Get("college").String(),
		Homepage:   result.Get("homepage").String(),
		Country:    result.Get("country").String(),
		Province:   result.Get("province").String(),
		City:       result.Get("city").String(),
		Personal:   result.Get("personal").String(),
		Shengxiao:  int(result.Get("shengxiao").Int()),
		Constel:    int(result.Get("constel").Int()),
		Blood:      int(result.Get("blood").Int()),
		VipInfo:    int(result.Get("vip_info").Int()),
		Allow:      int(result.Get("allow").Int()),
	}
}
