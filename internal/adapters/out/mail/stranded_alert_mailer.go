// internal/adapters/out/mail/stranded_alert_mailer.go
package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	usecase "blockto/internal/application/usecase"
	transferdom "blockto/internal/domain/transfer"
)

// EmailClient は実際のメール送信クライアント（SendGrid など）を抽象化した下位レベルのインターフェースです。
type EmailClient interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// StrandedAlertMailer
// 責任と機能:
// - custody に取り残された asset（TransferFailedAfterMint）を運用者にメール通知する
// - 宛先はカンマ区切りで複数指定可能。1 件でも失敗すればエラーを返す（残りの宛先には送る）
type StrandedAlertMailer struct {
	client      EmailClient
	fromAddress string
	recipients  []string
	explorer    string // 例: "https://explorer.solana.com"
	cluster     string // devnet / testnet / mainnet
}

var _ usecase.IncidentAlerter = (*StrandedAlertMailer)(nil)

var ErrNoAlertRecipients = errors.New("stranded_alert_mailer: no recipients")

func NewStrandedAlertMailer(client EmailClient, fromAddress, to, cluster string) *StrandedAlertMailer {
	var recips []string
	for _, r := range strings.Split(to, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recips = append(recips, r)
		}
	}
	return &StrandedAlertMailer{
		client:      client,
		fromAddress: strings.TrimSpace(fromAddress),
		recipients:  recips,
		explorer:    "https://explorer.solana.com",
		cluster:     strings.TrimSpace(cluster),
	}
}

func (m *StrandedAlertMailer) txURL(sig string) string {
	u := fmt.Sprintf("%s/tx/%s", m.explorer, sig)
	if m.cluster != "" && m.cluster != "mainnet" {
		u += "?cluster=" + m.cluster
	}
	return u
}

func (m *StrandedAlertMailer) buildBody(inc transferdom.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A minted asset could not be delivered and remains in the custodial account.\n\n")
	fmt.Fprintf(&b, "incident:   %s\n", inc.ID)
	fmt.Fprintf(&b, "kind:       %s\n", inc.Kind)
	fmt.Fprintf(&b, "asset:      %s\n", inc.AssetID)
	fmt.Fprintf(&b, "custody:    %s\n", inc.CustodyAddress)
	fmt.Fprintf(&b, "recipient:  %s\n", inc.Recipient)
	fmt.Fprintf(&b, "mint tx:    %s\n", m.txURL(inc.MintSignature))
	fmt.Fprintf(&b, "mint slot:  %d\n", inc.MintSlot)
	fmt.Fprintf(&b, "metadata:   %s\n", inc.MetadataURI)
	fmt.Fprintf(&b, "reason:     %s\n", inc.Reason)
	fmt.Fprintf(&b, "recorded:   %s\n", inc.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString("\nTransfer the asset manually and mark the incident resolved.\n")
	return b.String()
}

// NotifyStranded mails every configured operator.
func (m *StrandedAlertMailer) NotifyStranded(ctx context.Context, inc transferdom.Incident) error {
	if m == nil || m.client == nil {
		return errors.New("stranded_alert_mailer: not configured")
	}
	if len(m.recipients) == 0 {
		return ErrNoAlertRecipients
	}

	subject := fmt.Sprintf("[Blockto ALERT] asset stranded in custody (%s)", inc.CorrelationTag)
	body := m.buildBody(inc)

	var errs []error
	for _, to := range m.recipients {
		if err := m.client.Send(ctx, m.fromAddress, to, subject, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", to, err))
		}
	}
	return errors.Join(errs...)
}
