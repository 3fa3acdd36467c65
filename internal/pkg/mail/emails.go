package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"log"

	"github.com/dieselnoi/academy/app/models"
)

// Templated notification emails. Every sender logs and swallows failures;
// mail delivery is never allowed to fail the triggering request.

var welcomeTmpl = template.Must(template.New("welcome").Parse(`
<h2>Welcome, {{.Name}}!</h2>
<p>Your account is ready. Browse the course catalog and start with the free preview lessons.</p>
<p>Your personal referral code is <strong>{{.ReferralCode}}</strong>. Share it and earn credit when friends subscribe.</p>
`))

var referrerSignupTmpl = template.Must(template.New("referrer_signup").Parse(`
<h2>Good news, {{.Name}}!</h2>
<p>Someone just signed up with your referral code <strong>{{.Code}}</strong>.</p>
<p>You earn a credit as soon as they start their first subscription.</p>
`))

var creditEarnedTmpl = template.Must(template.New("credit_earned").Parse(`
<h2>You earned a referral credit!</h2>
<p>Hi {{.Name}}, a referral of yours just subscribed. A credit of <strong>${{printf "%.2f" .Amount}}</strong> was added to your account.</p>
<p>The credit is valid until {{.ExpiresAt}}.</p>
`))

var refereeWelcomeTmpl = template.Must(template.New("referee_welcome").Parse(`
<h2>Welcome aboard, {{.Name}}!</h2>
<p>You joined through a friend's referral. Great choice.</p>
<p>Pick a course and start learning today.</p>
`))

var courseCompletionTmpl = template.Must(template.New("course_completion").Parse(`
<h2>Congratulations, {{.Name}}!</h2>
<p>You completed every lesson of <strong>{{.CourseTitle}}</strong>.</p>
<p>Check your profile for new badges, and leave the course a review if you haven't yet.</p>
`))

func render(tmpl *template.Template, data interface{}) (string, bool) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("mail: rendering %s failed: %v", tmpl.Name(), err)
		return "", false
	}
	return buf.String(), true
}

func send(to, subject string, tmpl *template.Template, data interface{}) {
	body, ok := render(tmpl, data)
	if !ok {
		return
	}
	if err := SendMail(to, subject, body); err != nil {
		log.Printf("mail: sending %q to %s failed: %v", subject, to, err)
	}
}

// SendWelcome greets a freshly registered user.
func SendWelcome(user *models.User, referralCode string) {
	send(user.Email, "Welcome to Diesel Noi Academy", welcomeTmpl, struct {
		Name         string
		ReferralCode string
	}{user.DisplayName(), referralCode})
}

// SendReferrerSignupNotice tells a referrer their code was used.
func SendReferrerSignupNotice(referrer *models.User, code string) {
	send(referrer.Email, "Your referral code was used", referrerSignupTmpl, struct {
		Name string
		Code string
	}{referrer.DisplayName(), code})
}

// SendCreditEarned tells a referrer about their new credit.
func SendCreditEarned(referrer *models.User, credit *models.ReferralCredit) {
	send(referrer.Email, "You earned a referral credit", creditEarnedTmpl, struct {
		Name      string
		Amount    float64
		ExpiresAt string
	}{referrer.DisplayName(), credit.Amount, credit.ExpiresAt.Format("January 2, 2006")})
}

// SendRefereeWelcome greets a user who arrived through a referral.
func SendRefereeWelcome(referee *models.User) {
	send(referee.Email, "Welcome to Diesel Noi Academy", refereeWelcomeTmpl, struct {
		Name string
	}{referee.DisplayName()})
}

// SendCourseCompletion congratulates a user on finishing a course.
func SendCourseCompletion(user *models.User, course *models.Course) {
	send(user.Email, fmt.Sprintf("You finished %s!", course.Title), courseCompletionTmpl, struct {
		Name        string
		CourseTitle string
	}{user.DisplayName(), course.Title})
}
