// Package domain define contratos e tipos de domínio do throttling por janela.
//
// Quota descreve "quantas requisições, em quanto tempo"; TrackerEntry guarda o
// contador de uma chave dentro da janela atual; TrackerStore associa chaves a
// entradas. Decision e Rejection são o resultado de uma decisão do engine.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
