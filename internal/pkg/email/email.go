package email

import (
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/qs3c/mlm_go_server/config"
)

const brand = "Affiliate Network"

type Service struct {
	cfg *config.EmailConfig
}

func NewService(cfg *config.EmailConfig) *Service {
	return &Service{cfg: cfg}
}

// Enabled SMTP 未配置时所有通知邮件静默跳过
func (s *Service) Enabled() bool {
	return s != nil && s.cfg != nil && s.cfg.SMTPHost != "" && s.cfg.From != ""
}

// SendWelcome 发送欢迎邮件
func (s *Service) SendWelcome(to, username, referralCode string) error {
	subject := "Welcome to " + brand
	body := fmt.Sprintf(`
        <h2 style="color: #2563eb;">Welcome aboard!</h2>
        <p>Hi %s,</p>
        <p>Your account is ready. Share your referral code to start building your network:</p>
        <div style="background-color: #f3f4f6; padding: 15px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 3px; margin: 20px 0;">
            %s
        </div>`, html.EscapeString(username), html.EscapeString(referralCode))

	return s.sendHTML(to, subject, layout(body))
}

// SendMilestoneAchieved 通知会员达成推荐里程碑
func (s *Service) SendMilestoneAchieved(to, username string, count int, bonus string) error {
	subject := fmt.Sprintf("You reached %d referrals", count)
	body := fmt.Sprintf(`
        <h2 style="color: #16a34a;">Milestone reached</h2>
        <p>Hi %s,</p>
        <p>You now have <strong>%d</strong> referrals and earned a <strong>$%s</strong> bonus.</p>
        <p>The bonus will be paid out by our team shortly.</p>`, html.EscapeString(username), count, html.EscapeString(bonus))

	return s.sendHTML(to, subject, layout(body))
}

// SendKYCReviewed 通知会员 KYC 审核结果
func (s *Service) SendKYCReviewed(to, username string, approved bool, reason string) error {
	subject := "Your identity verification was reviewed"
	var result string
	if approved {
		result = `<p>Your verification was <strong>approved</strong>. All of your earnings are now payable.</p>`
	} else {
		result = fmt.Sprintf(`<p>Your verification was <strong>rejected</strong>.</p>
        <p style="background-color: #f3f4f6; padding: 10px;">%s</p>
        <p>You can submit it again from your dashboard.</p>`, html.EscapeString(reason))
	}
	body := fmt.Sprintf(`
        <h2 style="color: #2563eb;">Verification update</h2>
        <p>Hi %s,</p>
        %s`, html.EscapeString(username), result)

	return s.sendHTML(to, subject, layout(body))
}

func layout(content string) string {
	return `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">` + content + `
        <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
        <p style="color: #6b7280; font-size: 12px;">This message was sent automatically, please do not reply.</p>
    </div>
</body>
</html>
`
}

// buildMessage 拼装邮件头和正文
func (s *Service) buildMessage(to, subject, body string) []byte {
	headers := [][2]string{
		{"From", s.cfg.From},
		{"To", to},
		{"Subject", subject},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg strings.Builder
	for _, h := range headers {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", h[0], h[1]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

// sendHTML 发送 HTML 邮件
func (s *Service) sendHTML(to, subject, body string) error {
	if !s.Enabled() {
		return nil
	}

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, s.buildMessage(to, subject, body))
}
