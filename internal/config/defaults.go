package config

import "time"

// Default returns the built-in configuration for a provincial social services
// office. Deployments override it with a YAML document.
func Default() *Bot {
	return &Bot{
		BotName:    "Bot Dinas Sosial",
		AgencyName: "Dinas Sosial",
		Limits: Limits{
			MessageMaxAge:     12 * time.Hour,
			RateLimitMax:      20,
			RateLimitWindow:   time.Hour,
			ManualReplyWindow: 5 * time.Minute,
		},
		BotKeywords: []string{
			"bantuan", "daftar", "program", "pkh", "bpnt", "pip", "blt",
			"dinas", "sosial", "dinsos",
			"menu", "info", "syarat", "cara", "informasi",
			"registrasi", "pendaftaran", "dftar",
			"dtks", "data", "verifikasi",
			"lansia", "disabilitas", "anak", "ibu", "balita",
			"faq", "kontak", "jam", "operasional", "alamat", "telepon",
		},
		TriggerKeywords: []string{
			"halo", "hai", "hi", "hello", "hey",
			"pagi", "siang", "sore", "malam",
			"selamat pagi", "selamat siang", "selamat sore", "selamat malam",
			"assalamualaikum", "assalamualaykum", "waalaikumsalam",
			"menu", "mulai", "start", "info", "bantuan", "daftar",
			"permisi", "maaf", "mau tanya",
			"gan", "min", "admin", "bang", "kak", "bro",
		},
		PublicNamePatterns: []string{"ibu", "bapak", "pak ", "bu ", "bpk", "bp "},
		WorkingHours: WorkingHours{
			Timezone: "Asia/Jakarta",
			Start:    8,
			End:      16,
			Days:     []int{1, 2, 3, 4, 5},
		},
		FilterPolicies: map[string]string{},
		Registration:   Registration{Validation: ValidationPermissive},
		Contact: Contact{
			Phone:    "(0561) 123456",
			WhatsApp: "0812-3456-7890",
			Email:    "dinsos@example.com",
			Address:  "Jl. Contoh No.1",
		},
		Messages: Messages{
			RateLimitWarning: "Anda sudah mencapai batas maksimal pesan per jam.\n\n" +
				"Untuk bantuan lebih lanjut, silakan hubungi langsung:\n" +
				"WhatsApp: 0812-3456-7890\n" +
				"Telepon: (0561) 123456\n\n" +
				"Terima kasih atas pengertiannya.",
			OutsideHours: "{greeting}\n\n" +
				"Maaf, saat ini di luar jam kerja kantor.\n\n" +
				"Jam Operasional:\n" +
				"Senin - Jumat: 08.00 - 16.00 WIB\n" +
				"Sabtu - Minggu: TUTUP\n\n" +
				"Silakan hubungi kami kembali di jam kerja atau untuk bantuan darurat, hubungi:\n" +
				"WhatsApp: 0812-3456-7890\n\n" +
				"Ketik \"menu\" untuk melihat informasi yang tersedia.",
			AIErrorFallback: "Maaf, saya sedang mengalami kendala teknis saat memproses pertanyaan Anda.\n\n" +
				"Silakan:\n" +
				"1. Coba lagi beberapa saat\n" +
				"2. Ketik \"menu\" untuk melihat info yang tersedia\n" +
				"3. Hubungi staff kami:\n" +
				"   WhatsApp: 0812-3456-7890\n" +
				"   Telepon: (0561) 123456\n\n" +
				"Terima kasih atas pengertiannya.",
			Processing:        "Sebentar ya, saya cari jawabannya...",
			AIResponseSuffix:  "\n\nSemoga jawaban saya membantu! Kalau masih bingung atau mau tanya lagi, langsung chat aja.",
			FAQResponseSuffix: "\n\nSemoga membantu ya! Ada yang mau ditanya lagi?",
			StoreError:        "Maaf, sistem kami sedang sibuk. Silakan coba lagi beberapa saat lagi.",
			OutOfScope:        "Maaf, saya cuma bisa bantu soal layanan dan program bantuan sosial ya. Ketik \"menu\" untuk lihat info yang tersedia.",
		},
		AI: AI{
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.7,
			MaxTokens:   500,
			Moderation:  false,

			ResponseFormat: ResponseFormatJSONObject,
		},
		Programs: []Program{
			{
				Name:         "PKH",
				Description:  "Program Keluarga Harapan, bantuan tunai bersyarat untuk keluarga miskin.",
				Requirements: []string{"KTP", "Kartu Keluarga", "Terdaftar di DTKS"},
				HowToApply:   "Datang ke kantor desa/kelurahan atau daftar lewat bot ini.",
			},
			{
				Name:         "BPNT",
				Description:  "Bantuan Pangan Non Tunai untuk kebutuhan pangan keluarga.",
				Requirements: []string{"KTP", "Kartu Keluarga"},
				HowToApply:   "Ajukan melalui pendamping sosial setempat.",
			},
		},
		FAQ: []FAQEntry{
			{
				Keywords: []string{"dtks", "cek dtks"},
				Answer:   "Status DTKS bisa dicek di cekbansos.kemensos.go.id dengan memasukkan data sesuai KTP.",
			},
			{
				Keywords: []string{"syarat", "persyaratan"},
				Answer:   "Syarat umum: KTP, Kartu Keluarga, dan terdaftar di DTKS. Ketik angka program untuk syarat detail.",
			},
		},
		KnowledgeBase: "Anda adalah asisten Dinas Sosial. Bantu warga dengan informasi tentang program bantuan sosial.",
	}
}
