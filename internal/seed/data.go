package seed

// seedCategory は投入するカテゴリの定義。slugが一意キーになる。
type seedCategory struct {
	name        string
	slug        string
	description string
}

// seedProduct は投入する商品の定義。nameが一意キーになる。
type seedProduct struct {
	name         string
	description  string
	price        int64 // IDR
	stock        int
	imageURLs    []string
	categorySlug string
}

// seedCategories は既定のカテゴリ一覧。
// 再投入時はnameとdescriptionが上書きされる（最後の実行が勝つ）。
var seedCategories = []seedCategory{
	{
		name:        "Anyaman",
		slug:        "anyaman",
		description: "Kerajinan anyaman tangan dari pandan, rotan, dan bambu pilihan.",
	},
	{
		name:        "Tas",
		slug:        "tas",
		description: "Tas jinjing dan selempang hasil kerajinan tangan perajin mitra.",
	},
	{
		name:        "Keranjang",
		slug:        "keranjang",
		description: "Keranjang serbaguna untuk penyimpanan dan dekorasi rumah.",
	},
	{
		name:        "Dekorasi Rumah",
		slug:        "dekorasi-rumah",
		description: "Hiasan dinding dan pajangan rumah dari serat alam.",
	},
}

// seedProducts は既定の商品一覧。既存nameの行には一切触れない。
var seedProducts = []seedProduct{
	{
		name:         "Tas Tote Premium",
		description:  "Tas tote anyaman pandan premium dengan pegangan kulit dan jahitan rapi.",
		price:        185000,
		stock:        25,
		imageURLs:    []string{"https://images.alatacraft.id/products/tas-tote-premium.jpg"},
		categorySlug: "tas",
	},
	{
		name:         "Tas Selempang Rotan",
		description:  "Tas selempang bulat dari rotan asli dengan tali kulit yang dapat diatur.",
		price:        145000,
		stock:        18,
		imageURLs:    []string{"https://images.alatacraft.id/products/tas-selempang-rotan.jpg"},
		categorySlug: "tas",
	},
	{
		name:         "Keranjang Piknik Bambu",
		description:  "Keranjang piknik bambu dengan penutup dan pegangan ganda.",
		price:        210000,
		stock:        12,
		imageURLs:    []string{"https://images.alatacraft.id/products/keranjang-piknik-bambu.jpg"},
		categorySlug: "keranjang",
	},
	{
		name:         "Keranjang Laundry Pandan",
		description:  "Keranjang laundry anyaman pandan berukuran besar dengan lapisan kain.",
		price:        95000,
		stock:        30,
		imageURLs:    []string{"https://images.alatacraft.id/products/keranjang-laundry-pandan.jpg"},
		categorySlug: "keranjang",
	},
	{
		name:         "Tikar Anyaman Pandan",
		description:  "Tikar lipat anyaman pandan dua lapis untuk lesehan dan piknik.",
		price:        120000,
		stock:        20,
		imageURLs:    []string{"https://images.alatacraft.id/products/tikar-anyaman-pandan.jpg"},
		categorySlug: "anyaman",
	},
	{
		name:         "Tatakan Gelas Lidi",
		description:  "Set enam tatakan gelas dari lidi kelapa dengan motif spiral.",
		price:        35000,
		stock:        60,
		imageURLs:    []string{"https://images.alatacraft.id/products/tatakan-gelas-lidi.jpg"},
		categorySlug: "anyaman",
	},
	{
		name:         "Hiasan Dinding Makrame",
		description:  "Hiasan dinding makrame katun dengan bilah kayu jati belanda.",
		price:        165000,
		stock:        10,
		imageURLs:    []string{"https://images.alatacraft.id/products/hiasan-dinding-makrame.jpg"},
		categorySlug: "dekorasi-rumah",
	},
	{
		name:         "Cermin Rotan Bulat",
		description:  "Cermin dinding bulat berbingkai anyaman rotan diameter 50 cm.",
		price:        230000,
		stock:        8,
		imageURLs:    []string{"https://images.alatacraft.id/products/cermin-rotan-bulat.jpg"},
		categorySlug: "dekorasi-rumah",
	},
}
