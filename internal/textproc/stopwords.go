package textproc

// Brazilian Portuguese stop words, stored accent-folded because lookup
// happens after Normalize.
var stopwords = map[string]bool{
	"a": true, "o": true, "e": true, "de": true, "da": true, "do": true,
	"em": true, "um": true, "uma": true, "para": true, "com": true,
	"nao": true, "que": true, "os": true, "as": true, "dos": true,
	"das": true, "na": true, "no": true, "se": true, "por": true,
	"mais": true, "mas": true, "como": true, "foi": true, "sao": true,
	"ser": true, "tem": true, "seu": true, "sua": true, "ou": true,
	"quando": true, "muito": true, "nos": true, "ja": true, "eu": true,
	"tambem": true, "so": true, "pelo": true, "pela": true, "ate": true,
	"isso": true, "ela": true, "ele": true, "entre": true, "depois": true,
	"sem": true, "mesmo": true, "aos": true, "ter": true, "seus": true,
	"quem": true, "nas": true, "me": true, "esse": true, "eles": true,
	"voce": true, "essa": true, "num": true, "nem": true, "suas": true,
	"meu": true, "minha": true, "numa": true, "pelos": true, "elas": true,
	"qual": true, "lhe": true, "deles": true, "essas": true, "esses": true,
	"pelas": true, "este": true, "dele": true, "tu": true, "te": true,
	"voces": true, "vos": true, "lhes": true, "meus": true, "minhas": true,
	"teu": true, "tua": true, "teus": true, "tuas": true, "nosso": true,
	"nossa": true, "nossos": true, "nossas": true, "dela": true,
	"delas": true, "esta": true, "estes": true, "estas": true,
	"aquele": true, "aquela": true, "aqueles": true, "aquelas": true,
	"isto": true, "aquilo": true, "estou": true, "estamos": true,
	"estao": true, "estive": true, "esteve": true, "estivemos": true,
	"estiveram": true, "estava": true, "estavamos": true, "estavam": true,
	"estivera": true, "estiveramos": true, "esteja": true,
	"estejamos": true, "estejam": true, "estivesse": true,
	"estivessemos": true, "estivessem": true, "estiver": true,
	"estivermos": true, "estiverem": true, "hei": true, "ha": true,
	"havemos": true, "hao": true, "houve": true, "houvemos": true,
	"houveram": true, "houvera": true, "houveramos": true, "haja": true,
	"hajamos": true, "hajam": true, "houvesse": true, "houvessemos": true,
	"houvessem": true, "houver": true, "houvermos": true,
	"houverem": true, "houverei": true, "houveremos": true,
	"houverao": true, "houveria": true, "houveriamos": true,
	"houveriam": true, "sou": true, "somos": true, "era": true,
	"eramos": true, "eram": true, "fui": true, "fomos": true,
	"foram": true, "fora": true, "foramos": true, "seja": true,
	"sejamos": true, "sejam": true, "fosse": true, "fossemos": true,
	"fossem": true, "for": true, "formos": true, "forem": true,
	"serei": true, "sera": true, "seremos": true, "serao": true,
	"seria": true, "seriamos": true, "seriam": true, "tenho": true,
	"temos": true, "tinha": true, "tinhamos": true, "tinham": true,
	"tive": true, "teve": true, "tivemos": true, "tiveram": true,
	"tivera": true, "tiveramos": true, "tenha": true, "tenhamos": true,
	"tenham": true, "tivesse": true, "tivessemos": true,
	"tivessem": true, "tiver": true, "tivermos": true, "tiverem": true,
	"terei": true, "tera": true, "teremos": true, "terao": true,
	"teria": true, "teriamos": true, "teriam": true,
}

// IsStopword reports whether the accent-folded, lowercased token is a
// Portuguese stop word.
func IsStopword(token string) bool {
	return stopwords[token]
}
