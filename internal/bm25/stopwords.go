package bm25

// stopwords combines English and Turkish stopword lists so the index can
// filter function words out of both languages without a language
// detection step.
var stopwords = buildStopwords()

func buildStopwords() map[string]struct{} {
	english := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "when",
		"at", "by", "for", "with", "about", "against", "between", "into",
		"through", "during", "before", "after", "above", "below", "to", "from",
		"up", "down", "in", "out", "on", "off", "over", "under", "again",
		"further", "once", "here", "there", "where", "why",
		"how", "all", "any", "both", "each", "few", "more", "most", "other",
		"some", "such", "no", "nor", "not", "only", "own", "same", "so",
		"than", "too", "very", "s", "t", "can", "will", "just", "don", "don't",
		"should", "should've", "now", "d", "ll", "m", "o", "re", "ve", "y",
		"ain", "aren", "aren't", "couldn", "couldn't", "didn", "didn't",
		"doesn", "doesn't", "hadn", "hadn't", "hasn", "hasn't", "haven",
		"haven't", "isn", "isn't", "ma", "mightn", "mightn't", "mustn",
		"mustn't", "needn", "needn't", "shan", "shan't", "shouldn", "shouldn't",
		"wasn", "wasn't", "weren", "weren't", "won", "won't", "wouldn", "wouldn't",
	}
	turkish := []string{
		"acaba", "altı", "altmış", "ama", "bana", "bazı", "belki", "ben", "benden",
		"beni", "benim", "beş", "bin", "bir", "biri", "birkaç", "birkez", "birşey",
		"birşeyi", "biz", "bizden", "bize", "bizi", "bizim", "bu", "buna", "bunda",
		"bundan", "bunu", "bunun", "da", "daha", "dahi", "de", "defa", "diye", "doksan",
		"dokuz", "dolayı", "dolayısıyla", "dört", "elli", "en", "gibi", "hem", "hep",
		"hepsi", "her", "herhangi", "herkesin", "hiç", "iki", "ile", "ilgili", "ise",
		"işte", "itibaren", "itibariyle", "kadar", "karşın", "kez", "ki", "kim", "kimden",
		"kime", "kimi", "kırk", "milyar", "milyon", "mu", "mı", "nasıl", "ne", "neden",
		"nedenle", "nerde", "nerede", "nereye", "niye", "niçin", "on", "ona", "ondan",
		"onlar", "onlardan", "onlari", "onların", "onu", "otuz", "sanki", "sekiz",
		"seksen", "sen", "senden", "seni", "senin", "siz", "sizden", "size", "sizi",
		"sizin", "trilyon", "tüm", "ve", "veya", "ya", "yani", "yedi", "yetmiş", "yine",
		"yirmi", "yüz", "çok", "çünkü", "üç", "şey", "şeyden", "şeyi", "şeyler", "şu",
		"şuna", "şunda", "şundan", "şunu",
	}
	set := make(map[string]struct{}, len(english)+len(turkish))
	for _, w := range english {
		set[w] = struct{}{}
	}
	for _, w := range turkish {
		set[w] = struct{}{}
	}
	return set
}

func isStopword(term string) bool {
	_, ok := stopwords[term]
	return ok
}
