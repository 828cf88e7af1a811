package registration

import (
	"fmt"

	"dinsos-bot/internal/domain"
)

const (
	replyCancelled    = "Oke, pendaftarannya dibatalin ya. Ga papa kok! Kalau mau daftar lagi, tinggal hubungi aja."
	replyConfirmAgain = `Maaf, saya kurang paham. Ketik "ya" kalau datanya udah bener, atau "batal" kalau mau dibatalin.`
	replySaveFailed   = `Maaf, data kamu belum berhasil disimpan karena gangguan sistem. Coba ketik "ya" lagi sebentar lagi, atau "batal" kalau mau dibatalin.`
)

func startText(program string) string {
	return fmt.Sprintf("Oke siap, saya bantu daftarin kamu untuk %s ya!\n\nBoleh kasih tau nama lengkap kamu? (sesuai KTP)", program)
}

// promptFor asks for the field the session is waiting on.
func promptFor(s domain.RegistrationSession) string {
	switch s.Step {
	case domain.StepName:
		return "Boleh kasih tau nama lengkap kamu? (sesuai KTP)"
	case domain.StepNIK:
		return "NIK-nya berapa? (16 digit sesuai KTP)"
	case domain.StepAddress:
		return "Alamat lengkap kamu dimana? (RT/RW juga ya)"
	case domain.StepPhone:
		return "Nomor HP yang bisa dihubungi berapa?"
	default:
		return summaryText(s.Collected)
	}
}

// advanceText acknowledges the value just stored and asks for the next one.
func advanceText(next domain.Step, f domain.RegistrationForm) string {
	switch next {
	case domain.StepNIK:
		return fmt.Sprintf("Oke %s, sekarang NIK-nya berapa?", f.Name)
	case domain.StepAddress:
		return "Noted! Sekarang alamat lengkap kamu dimana? (RT/RW juga ya)"
	case domain.StepPhone:
		return "Oke deh, terakhir... Nomor HP yang bisa dihubungi berapa?"
	default:
		return summaryText(f)
	}
}

func summaryText(f domain.RegistrationForm) string {
	return "Oke, saya cek dulu datanya ya:\n\n" +
		fmt.Sprintf("Nama: %s\nNIK: %s\nAlamat: %s\nHP: %s\n\n", f.Name, f.NIK, f.Address, f.Phone) +
		"Udah bener semua? Kalau udah, ketik \"ya\" buat submit.\n" +
		"Kalau ada yang salah, ketik \"batal\" aja."
}

func submittedText(rec domain.RegistrationRecord) string {
	return "Pendaftaran kamu udah masuk kok!\n\n" +
		fmt.Sprintf("Terima kasih %s, data kamu udah kami terima dan bakal segera diproses.\n\n", rec.Name) +
		fmt.Sprintf("ID Registrasi: %s\n\n", rec.ID) +
		fmt.Sprintf("Nanti staff kami bakal hubungi kamu di %s untuk verifikasi lebih lanjut.\n\n", rec.Phone) +
		`Ada yang mau ditanyain lagi ga? Atau ketik "menu" aja kalau mau balik.`
}
