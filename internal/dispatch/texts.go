package dispatch

import (
	"fmt"
	"strings"
	"time"

	"dinsos-bot/internal/config"
	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/knowledge"
)

// Greeting picks the Indonesian greeting for the hour of t.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 11:
		return "Selamat pagi"
	case h >= 11 && h < 15:
		return "Selamat siang"
	case h >= 15 && h < 18:
		return "Selamat sore"
	default:
		return "Selamat malam"
	}
}

var dayNames = [...]string{"Minggu", "Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}

func mainMenuText(greeting, agency string) string {
	return fmt.Sprintf("%s!\n\nSaya asisten dari %s. Ada yang bisa saya bantu?\n\n", greeting, agency) +
		"Kalau mau, bisa pilih:\n" +
		"1. Info program bantuan sosial\n" +
		"2. Daftar bantuan\n" +
		"3. Tanya-tanya (FAQ)\n" +
		"4. Kontak kami\n\n" +
		"Atau langsung chat aja, saya siap bantu!"
}

func servicesText(greeting string, programs []config.Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s! Ini daftar program bantuan yang ada:\n\n", greeting)
	if len(programs) == 0 {
		b.WriteString("Maaf, saat ini belum ada program yang tersedia.\n\n")
	}
	for i, p := range programs {
		fmt.Fprintf(&b, "%d. %s\n   %s\n\n", i+1, p.Name, p.Description)
	}
	b.WriteString("Mau tahu lebih detail? Tinggal kirim angka programnya aja!\nAtau ketik \"menu\" kalau mau balik ke awal.")
	return b.String()
}

const programNotFoundText = `Program yang kamu maksud ga ketemu nih. Coba lihat daftar program dulu ya, ketik angka "2".`

func programDetailText(p config.Program) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ini info tentang %s:\n\n%s\n\n", p.Name, p.Description)
	b.WriteString("Syarat yang perlu disiapkan:\n")
	for i, r := range p.Requirements {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
	}
	fmt.Fprintf(&b, "\nCara daftarnya:\n%s\n\n", p.HowToApply)
	fmt.Fprintf(&b, "Kalau mau daftar sekarang, tinggal ketik:\ndaftar %s", p.Name)
	return b.String()
}

func faqListText(greeting string, topics []knowledge.Topic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s! Ini beberapa pertanyaan yang sering ditanya:\n\n", greeting)
	if len(topics) == 0 {
		b.WriteString("Belum ada FAQ nih. Tapi ga papa, langsung tanya aja ke saya!\n\n")
	}
	for i, t := range topics {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, t.Title, t.Answer)
	}
	b.WriteString("Ada pertanyaan lain? Langsung chat aja atau ketik \"menu\" ya!")
	return b.String()
}

func contactText(greeting string, c config.Contact, wh config.WorkingHours) string {
	return fmt.Sprintf("%s! Kalau mau hubungi kami, ini kontaknya:\n\n", greeting) +
		fmt.Sprintf("Telepon: %s\nWhatsApp: %s\nEmail: %s\nAlamat: %s\n\n", c.Phone, c.WhatsApp, c.Email, c.Address) +
		"Kantor buka:\n" +
		fmt.Sprintf("%s: %02d.00 - %02d.00\n\n", dayRange(wh.Days), wh.Start, wh.End) +
		"Atau langsung chat di sini juga bisa kok!"
}

// dayRange renders working days as "Senin - Jumat" when they are consecutive
// and as a list otherwise.
func dayRange(days []int) string {
	if len(days) == 0 {
		return "-"
	}
	consecutive := true
	for i := 1; i < len(days); i++ {
		if days[i] != days[i-1]+1 {
			consecutive = false
			break
		}
	}
	if consecutive && len(days) > 2 {
		return dayNames[days[0]] + " - " + dayNames[days[len(days)-1]]
	}
	names := make([]string, 0, len(days))
	for _, d := range days {
		names = append(names, dayNames[d])
	}
	return strings.Join(names, ", ")
}

func outsideHoursText(template, greeting string) string {
	return strings.ReplaceAll(template, "{greeting}", greeting)
}

func statusText(uptime time.Duration, activated, registrations int, working bool) string {
	yesNo := "NO"
	if working {
		yesNo = "YES"
	}
	return "BOT STATUS\n\n" +
		"Status: Running\n" +
		fmt.Sprintf("Uptime: %d hours\n", int(uptime.Hours())) +
		fmt.Sprintf("Activated users: %d\n", activated) +
		fmt.Sprintf("Registrations: %d\n", registrations) +
		fmt.Sprintf("Working hours: %s", yesNo)
}

func registrationsText(recs []domain.RegistrationRecord, total, limit int, loc *time.Location) string {
	if total == 0 {
		return "Belum ada data pendaftaran nih."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ini data pendaftaran terbaru (total: %d orang):\n\n", total)
	for i, r := range recs {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, orNA(r.Name), r.Program)
		fmt.Fprintf(&b, "   NIK: %s\n", orNA(r.NIK))
		fmt.Fprintf(&b, "   %s\n\n", r.CreatedAt.In(loc).Format("02/01/2006 15.04.05"))
	}
	if total > limit {
		fmt.Fprintf(&b, "(Ini cuma %d data terakhir, totalnya ada %d orang)", limit, total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
